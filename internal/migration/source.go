package migration

import (
	"context"
	"errors"

	"github.com/temirov/ticketbridge/internal/convert"
	"github.com/temirov/ticketbridge/internal/loader"
	"github.com/temirov/ticketbridge/internal/remote"
)

const (
	sourceLoaderMissingMessageConstant    = "record loader not configured"
	sourceConverterMissingMessageConstant = "payload converter not configured"
)

var (
	errSourceLoaderMissing    = errors.New(sourceLoaderMissingMessageConstant)
	errSourceConverterMissing = errors.New(sourceConverterMissingMessageConstant)
)

// MappedRecordSource adapts the filesystem loader and payload converter into
// the RecordSource the coordinator consumes.
type MappedRecordSource struct {
	recordLoader *loader.FilesystemRecordLoader
	converter    *convert.Converter
}

// NewMappedRecordSource constructs a MappedRecordSource from its collaborators.
func NewMappedRecordSource(recordLoader *loader.FilesystemRecordLoader, converter *convert.Converter) (*MappedRecordSource, error) {
	if recordLoader == nil {
		return nil, errSourceLoaderMissing
	}
	if converter == nil {
		return nil, errSourceConverterMissing
	}
	return &MappedRecordSource{recordLoader: recordLoader, converter: converter}, nil
}

// ListRecordIDs returns every record identifier available in the export.
func (recordSource *MappedRecordSource) ListRecordIDs() ([]string, error) {
	return recordSource.recordLoader.ListRecordIDs()
}

// LoadRecord loads and converts one exported ticket into a migration record.
func (recordSource *MappedRecordSource) LoadRecord(_ context.Context, recordID string) (Record, error) {
	ticketDocument, loadError := recordSource.recordLoader.LoadTicket(recordID)
	if loadError != nil {
		return Record{}, loadError
	}

	stagedAttachments, stagingError := recordSource.recordLoader.StagedAttachments(ticketDocument)
	if stagingError != nil {
		return Record{}, stagingError
	}

	attachmentReferences := make([]remote.AttachmentRef, 0, len(stagedAttachments))
	for _, stagedAttachment := range stagedAttachments {
		attachmentReferences = append(attachmentReferences, remote.AttachmentRef{
			AttachmentID: stagedAttachment.AttachmentID,
			FileName:     stagedAttachment.FileName,
			FilePath:     stagedAttachment.FilePath,
			SizeBytes:    stagedAttachment.SizeBytes,
		})
	}

	record := Record{
		RecordID:    recordID,
		Payload:     recordSource.converter.Convert(ticketDocument),
		Attachments: attachmentReferences,
	}

	return record, nil
}
