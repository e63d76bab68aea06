package convert

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/temirov/ticketbridge/internal/loader"
	"github.com/temirov/ticketbridge/internal/remote"
)

const (
	mappingLoadErrorTemplateConstant  = "failed to load field mapping: %w"
	mappingParseErrorTemplateConstant = "failed to parse field mapping: %w"
	projectKeyRequiredMessageConstant = "converter project key must be provided"
	summaryFallbackTemplateConstant   = "Migrated ticket %s"
	migrationLabelConstant            = "migrated"
	sourceLabelTemplateConstant       = "source-ticket-%s"
	defaultIssueTypeConstant          = "Task"
	defaultPriorityConstant           = "Medium"
)

var errProjectKeyRequired = errors.New(projectKeyRequiredMessageConstant)

// MappingConfiguration declares how exported ticket fields translate to issue fields.
type MappingConfiguration struct {
	IssueType  string            `yaml:"issue_type"`
	Priorities map[string]string `yaml:"priorities"`
	Statuses   map[string]string `yaml:"statuses"`
}

// LoadMappingConfiguration reads the YAML mapping table from the provided path.
// An empty path yields an empty mapping, which falls back to defaults.
func LoadMappingConfiguration(mappingPath string) (MappingConfiguration, error) {
	if len(strings.TrimSpace(mappingPath)) == 0 {
		return MappingConfiguration{}, nil
	}

	mappingContent, readError := os.ReadFile(mappingPath)
	if readError != nil {
		return MappingConfiguration{}, fmt.Errorf(mappingLoadErrorTemplateConstant, readError)
	}

	var mappingConfiguration MappingConfiguration
	if decodeError := yaml.Unmarshal(mappingContent, &mappingConfiguration); decodeError != nil {
		return MappingConfiguration{}, fmt.Errorf(mappingParseErrorTemplateConstant, decodeError)
	}

	return mappingConfiguration, nil
}

// Converter builds issue payloads for one destination project.
type Converter struct {
	projectKey string
	mapping    MappingConfiguration
}

// NewConverter validates inputs and constructs a Converter.
func NewConverter(projectKey string, mapping MappingConfiguration) (*Converter, error) {
	trimmedProjectKey := strings.TrimSpace(projectKey)
	if len(trimmedProjectKey) == 0 {
		return nil, errProjectKeyRequired
	}
	return &Converter{projectKey: trimmedProjectKey, mapping: mapping}, nil
}

// Convert produces the issue payload for the provided exported ticket.
func (converter *Converter) Convert(ticketDocument loader.TicketDocument) remote.IssuePayload {
	issueSummary := strings.TrimSpace(ticketDocument.Subject)
	if len(issueSummary) == 0 {
		issueSummary = fmt.Sprintf(summaryFallbackTemplateConstant, ticketDocument.TicketID)
	}

	issueType := strings.TrimSpace(converter.mapping.IssueType)
	if len(issueType) == 0 {
		issueType = defaultIssueTypeConstant
	}

	issueLabels := append([]string{}, ticketDocument.Tags...)
	issueLabels = append(issueLabels, migrationLabelConstant, fmt.Sprintf(sourceLabelTemplateConstant, ticketDocument.TicketID))

	return remote.IssuePayload{
		ProjectKey:  converter.projectKey,
		IssueType:   issueType,
		Summary:     issueSummary,
		Description: ticketDocument.Description,
		Priority:    converter.mappedPriority(ticketDocument.Priority),
		Labels:      issueLabels,
	}
}

func (converter *Converter) mappedPriority(sourcePriority int) string {
	if len(converter.mapping.Priorities) == 0 {
		return defaultPriorityConstant
	}
	if mappedValue, mappingExists := converter.mapping.Priorities[strconv.Itoa(sourcePriority)]; mappingExists {
		return mappedValue
	}
	return defaultPriorityConstant
}
