package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	ticketDetailsDirectoryNameConstant     = "ticket_details"
	attachmentsDirectoryNameConstant       = "attachments"
	ticketDetailsFileNameTemplateConstant  = "ticket_%s_details.json"
	ticketDetailsFileNamePrefixConstant    = "ticket_"
	ticketDetailsFileNameSuffixConstant    = "_details.json"
	dataDirectoryRequiredMessageConstant   = "loader data directory must be provided"
	recordNotFoundMessageTemplateConstant  = "source record %s not found: %s"
	recordListingErrorTemplateConstant     = "unable to list source records: %w"
	attachmentListingErrorTemplateConstant = "unable to list attachments for record %s: %w"
)

var errDataDirectoryRequired = errors.New(dataDirectoryRequiredMessageConstant)

// RecordNotFoundError reports that source data for a record is absent or malformed.
type RecordNotFoundError struct {
	RecordID string
	Cause    string
}

// Error describes the missing record.
func (notFoundError RecordNotFoundError) Error() string {
	return fmt.Sprintf(recordNotFoundMessageTemplateConstant, notFoundError.RecordID, notFoundError.Cause)
}

// IsRecordNotFound reports whether the error marks an absent or malformed source record.
func IsRecordNotFound(candidateError error) bool {
	var notFoundError RecordNotFoundError
	return errors.As(candidateError, &notFoundError)
}

// TicketDocument is the raw exported ticket consumed by the payload converter.
type TicketDocument struct {
	TicketID    string              `json:"-"`
	Subject     string              `json:"subject"`
	Description string              `json:"description_text"`
	Priority    int                 `json:"priority"`
	Status      int                 `json:"status"`
	Type        string              `json:"type"`
	Tags        []string            `json:"tags"`
	Attachments []AttachmentDetails `json:"attachments"`
}

// AttachmentDetails describes one exported attachment reference.
type AttachmentDetails struct {
	AttachmentID int64  `json:"id"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
}

// StagedAttachment pairs an exported attachment reference with its on-disk file.
type StagedAttachment struct {
	AttachmentID string
	FileName     string
	FilePath     string
	SizeBytes    int64
}

// FilesystemRecordLoader reads exported tickets from a data directory.
type FilesystemRecordLoader struct {
	dataDirectory string
}

// NewFilesystemRecordLoader validates the data directory path and constructs a loader.
func NewFilesystemRecordLoader(dataDirectory string) (*FilesystemRecordLoader, error) {
	trimmedDirectory := strings.TrimSpace(dataDirectory)
	if len(trimmedDirectory) == 0 {
		return nil, errDataDirectoryRequired
	}
	return &FilesystemRecordLoader{dataDirectory: trimmedDirectory}, nil
}

// ListRecordIDs returns every ticket identifier with an exported details document.
func (recordLoader *FilesystemRecordLoader) ListRecordIDs() ([]string, error) {
	detailsDirectory := filepath.Join(recordLoader.dataDirectory, ticketDetailsDirectoryNameConstant)
	directoryEntries, readError := os.ReadDir(detailsDirectory)
	if readError != nil {
		return nil, fmt.Errorf(recordListingErrorTemplateConstant, readError)
	}

	var recordIdentifiers []string
	for _, directoryEntry := range directoryEntries {
		entryName := directoryEntry.Name()
		if !strings.HasPrefix(entryName, ticketDetailsFileNamePrefixConstant) || !strings.HasSuffix(entryName, ticketDetailsFileNameSuffixConstant) {
			continue
		}
		recordIdentifier := strings.TrimSuffix(strings.TrimPrefix(entryName, ticketDetailsFileNamePrefixConstant), ticketDetailsFileNameSuffixConstant)
		if len(recordIdentifier) > 0 {
			recordIdentifiers = append(recordIdentifiers, recordIdentifier)
		}
	}

	sort.Strings(recordIdentifiers)
	return recordIdentifiers, nil
}

// LoadTicket reads the exported ticket document for the provided identifier.
func (recordLoader *FilesystemRecordLoader) LoadTicket(recordID string) (TicketDocument, error) {
	detailsPath := filepath.Join(recordLoader.dataDirectory, ticketDetailsDirectoryNameConstant, fmt.Sprintf(ticketDetailsFileNameTemplateConstant, recordID))

	detailsContent, readError := os.ReadFile(detailsPath)
	if readError != nil {
		return TicketDocument{}, RecordNotFoundError{RecordID: recordID, Cause: readError.Error()}
	}

	var ticketDocument TicketDocument
	if decodeError := json.Unmarshal(detailsContent, &ticketDocument); decodeError != nil {
		return TicketDocument{}, RecordNotFoundError{RecordID: recordID, Cause: decodeError.Error()}
	}

	ticketDocument.TicketID = recordID
	return ticketDocument, nil
}

// StagedAttachments resolves the on-disk files for the ticket's attachment references.
// References without a matching file are skipped; the upload layer reports
// missing files when the path later disappears.
func (recordLoader *FilesystemRecordLoader) StagedAttachments(ticketDocument TicketDocument) ([]StagedAttachment, error) {
	attachmentsDirectory := filepath.Join(recordLoader.dataDirectory, attachmentsDirectoryNameConstant, ticketDocument.TicketID)

	var stagedAttachments []StagedAttachment
	for _, attachmentReference := range ticketDocument.Attachments {
		attachmentPath := filepath.Join(attachmentsDirectory, attachmentReference.Name)
		fileInformation, statError := os.Stat(attachmentPath)
		if statError != nil {
			if os.IsNotExist(statError) {
				continue
			}
			return nil, fmt.Errorf(attachmentListingErrorTemplateConstant, ticketDocument.TicketID, statError)
		}

		stagedAttachments = append(stagedAttachments, StagedAttachment{
			AttachmentID: fmt.Sprintf("%d", attachmentReference.AttachmentID),
			FileName:     attachmentReference.Name,
			FilePath:     attachmentPath,
			SizeBytes:    fileInformation.Size(),
		})
	}

	return stagedAttachments, nil
}
