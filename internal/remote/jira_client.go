package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	issueEndpointTemplateConstant               = "%s/rest/api/3/issue"
	issueDeleteEndpointTemplateConstant         = "%s/rest/api/3/issue/%s"
	attachmentEndpointTemplateConstant          = "%s/rest/api/3/issue/%s/attachments"
	searchEndpointTemplateConstant              = "%s/rest/api/3/search"
	attachmentTokenHeaderNameConstant           = "X-Atlassian-Token"
	attachmentTokenHeaderValueConstant          = "no-check"
	contentTypeHeaderNameConstant               = "Content-Type"
	acceptHeaderNameConstant                    = "Accept"
	jsonContentTypeConstant                     = "application/json"
	retryAfterHeaderNameConstant                = "Retry-After"
	multipartFileFieldNameConstant              = "file"
	searchQueryParameterNameConstant            = "jql"
	searchStartAtParameterNameConstant          = "startAt"
	searchMaxResultsParameterNameConstant       = "maxResults"
	searchFieldsParameterNameConstant           = "fields"
	searchFieldsValueConstant                   = "key,summary,created"
	searchKeyRangeQueryTemplateConstant         = "project = %s AND key >= %s AND key <= %s ORDER BY key ASC"
	baseURLRequiredMessageConstant              = "remote base URL must be provided"
	credentialsRequiredMessageConstant          = "remote credentials must be provided"
	requestConstructionErrorTemplateConstant    = "unable to construct %s request: %w"
	requestExecutionErrorTemplateConstant       = "%s request failed: %w"
	responseDecodingErrorTemplateConstant       = "unable to decode %s response: %w"
	payloadEncodingErrorTemplateConstant        = "unable to encode %s payload: %w"
	unexpectedStatusMessageTemplateConstant     = "%s returned status %d: %s"
	createIssueOperationNameConstant            = "create issue"
	deleteIssueOperationNameConstant            = "delete issue"
	uploadAttachmentsOperationNameConstant      = "upload attachments"
	searchIssuesOperationNameConstant           = "search issues"
	attachmentFileOpenFailureReasonTemplate     = "unable to open attachment file: %v"
	defaultCallTimeoutConstant                  = 60 * time.Second
	defaultAttachmentBatchCountLimitConstant    = 50
	defaultAttachmentBatchByteLimitConstant     = int64(25 << 20)
	defaultSearchPageSizeConstant               = 100
	responseBodyPreviewByteLimitConstant        = 512
	rateLimitedHTTPStatusConstant               = http.StatusTooManyRequests
	requestTimeoutHTTPStatusConstant            = http.StatusRequestTimeout
	priorityFieldAbsentValueConstant            = ""
	issueSearchProjectRequiredMessageConstant   = "issue search project key must be provided"
	issueSearchKeyBoundsRequiredMessageConstant = "issue search key bounds must be provided"
)

var (
	errBaseURLRequired     = errors.New(baseURLRequiredMessageConstant)
	errCredentialsRequired = errors.New(credentialsRequiredMessageConstant)
)

// ClientOptions configures the destination tracker REST client.
type ClientOptions struct {
	BaseURL              string
	Email                string
	APIToken             string
	HTTPClient           *http.Client
	CallTimeout          time.Duration
	AttachmentBatchCount int
	AttachmentBatchBytes int64
}

// Client performs issue operations against a Jira-compatible REST API.
type Client struct {
	baseURL              string
	email                string
	apiToken             string
	httpClient           *http.Client
	callTimeout          time.Duration
	attachmentBatchCount int
	attachmentBatchBytes int64
}

// NewClient validates the provided options and constructs a Client.
func NewClient(options ClientOptions) (*Client, error) {
	trimmedBaseURL := strings.TrimRight(strings.TrimSpace(options.BaseURL), "/")
	if len(trimmedBaseURL) == 0 {
		return nil, errBaseURLRequired
	}
	if len(strings.TrimSpace(options.Email)) == 0 || len(strings.TrimSpace(options.APIToken)) == 0 {
		return nil, errCredentialsRequired
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	callTimeout := options.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeoutConstant
	}

	attachmentBatchCount := options.AttachmentBatchCount
	if attachmentBatchCount <= 0 {
		attachmentBatchCount = defaultAttachmentBatchCountLimitConstant
	}

	attachmentBatchBytes := options.AttachmentBatchBytes
	if attachmentBatchBytes <= 0 {
		attachmentBatchBytes = defaultAttachmentBatchByteLimitConstant
	}

	client := &Client{
		baseURL:              trimmedBaseURL,
		email:                strings.TrimSpace(options.Email),
		apiToken:             strings.TrimSpace(options.APIToken),
		httpClient:           httpClient,
		callTimeout:          callTimeout,
		attachmentBatchCount: attachmentBatchCount,
		attachmentBatchBytes: attachmentBatchBytes,
	}

	return client, nil
}

type issueCreateRequest struct {
	Fields issueCreateFields `json:"fields"`
}

type issueCreateFields struct {
	Project     issueProjectReference `json:"project"`
	IssueType   issueTypeReference    `json:"issuetype"`
	Summary     string                `json:"summary"`
	Description string                `json:"description,omitempty"`
	Priority    *issuePriorityReference `json:"priority,omitempty"`
	Labels      []string              `json:"labels,omitempty"`
}

type issueProjectReference struct {
	Key string `json:"key"`
}

type issueTypeReference struct {
	Name string `json:"name"`
}

type issuePriorityReference struct {
	Name string `json:"name"`
}

type issueCreateResponse struct {
	Key string `json:"key"`
}

// CreateIssue creates a remote issue and returns its key.
func (client *Client) CreateIssue(executionContext context.Context, payload IssuePayload) (string, error) {
	requestBody := issueCreateRequest{
		Fields: issueCreateFields{
			Project:     issueProjectReference{Key: payload.ProjectKey},
			IssueType:   issueTypeReference{Name: payload.IssueType},
			Summary:     payload.Summary,
			Description: payload.Description,
			Labels:      payload.Labels,
		},
	}
	if payload.Priority != priorityFieldAbsentValueConstant {
		requestBody.Fields.Priority = &issuePriorityReference{Name: payload.Priority}
	}

	encodedBody, encodeError := json.Marshal(requestBody)
	if encodeError != nil {
		return "", FatalError{Cause: fmt.Errorf(payloadEncodingErrorTemplateConstant, createIssueOperationNameConstant, encodeError)}
	}

	callContext, cancelCall := context.WithTimeout(executionContext, client.callTimeout)
	defer cancelCall()

	endpoint := fmt.Sprintf(issueEndpointTemplateConstant, client.baseURL)
	request, requestError := http.NewRequestWithContext(callContext, http.MethodPost, endpoint, bytes.NewReader(encodedBody))
	if requestError != nil {
		return "", FatalError{Cause: fmt.Errorf(requestConstructionErrorTemplateConstant, createIssueOperationNameConstant, requestError)}
	}
	request.Header.Set(contentTypeHeaderNameConstant, jsonContentTypeConstant)
	request.Header.Set(acceptHeaderNameConstant, jsonContentTypeConstant)
	request.SetBasicAuth(client.email, client.apiToken)

	response, executionError := client.httpClient.Do(request)
	if executionError != nil {
		return "", RetryableError{Cause: fmt.Errorf(requestExecutionErrorTemplateConstant, createIssueOperationNameConstant, executionError)}
	}
	defer response.Body.Close()

	if statusError := classifyResponseStatus(createIssueOperationNameConstant, response); statusError != nil {
		return "", statusError
	}

	var decodedResponse issueCreateResponse
	if decodeError := json.NewDecoder(response.Body).Decode(&decodedResponse); decodeError != nil {
		return "", FatalError{Cause: fmt.Errorf(responseDecodingErrorTemplateConstant, createIssueOperationNameConstant, decodeError)}
	}

	return decodedResponse.Key, nil
}

// DeleteIssue removes a remote issue. Deleting an already-deleted issue is not an error.
func (client *Client) DeleteIssue(executionContext context.Context, issueKey string) error {
	callContext, cancelCall := context.WithTimeout(executionContext, client.callTimeout)
	defer cancelCall()

	endpoint := fmt.Sprintf(issueDeleteEndpointTemplateConstant, client.baseURL, url.PathEscape(issueKey))
	request, requestError := http.NewRequestWithContext(callContext, http.MethodDelete, endpoint, nil)
	if requestError != nil {
		return FatalError{Cause: fmt.Errorf(requestConstructionErrorTemplateConstant, deleteIssueOperationNameConstant, requestError)}
	}
	request.SetBasicAuth(client.email, client.apiToken)

	response, executionError := client.httpClient.Do(request)
	if executionError != nil {
		return RetryableError{Cause: fmt.Errorf(requestExecutionErrorTemplateConstant, deleteIssueOperationNameConstant, executionError)}
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return nil
	}

	return classifyResponseStatus(deleteIssueOperationNameConstant, response)
}

// UploadAttachments uploads the provided attachments in batches bounded by count and total size.
// Files that cannot be read are reported individually without failing the whole pass.
func (client *Client) UploadAttachments(executionContext context.Context, issueKey string, attachments []AttachmentRef) (UploadResult, error) {
	uploadResult := UploadResult{}
	if len(attachments) == 0 {
		return uploadResult, nil
	}

	for _, attachmentBatch := range client.buildAttachmentBatches(attachments) {
		batchError := client.uploadAttachmentBatch(executionContext, issueKey, attachmentBatch, &uploadResult)
		if batchError != nil {
			return uploadResult, batchError
		}
	}

	return uploadResult, nil
}

func (client *Client) buildAttachmentBatches(attachments []AttachmentRef) [][]AttachmentRef {
	var attachmentBatches [][]AttachmentRef
	var currentBatch []AttachmentRef
	var currentBatchBytes int64

	for _, attachment := range attachments {
		batchFull := len(currentBatch) >= client.attachmentBatchCount ||
			(len(currentBatch) > 0 && currentBatchBytes+attachment.SizeBytes > client.attachmentBatchBytes)
		if batchFull {
			attachmentBatches = append(attachmentBatches, currentBatch)
			currentBatch = nil
			currentBatchBytes = 0
		}
		currentBatch = append(currentBatch, attachment)
		currentBatchBytes += attachment.SizeBytes
	}

	if len(currentBatch) > 0 {
		attachmentBatches = append(attachmentBatches, currentBatch)
	}

	return attachmentBatches
}

func (client *Client) uploadAttachmentBatch(executionContext context.Context, issueKey string, attachmentBatch []AttachmentRef, uploadResult *UploadResult) error {
	bodyBuffer := &bytes.Buffer{}
	multipartWriter := multipart.NewWriter(bodyBuffer)

	var includedFileNames []string
	for _, attachment := range attachmentBatch {
		attachmentFile, openError := os.Open(attachment.FilePath)
		if openError != nil {
			uploadResult.Failed = append(uploadResult.Failed, AttachmentFailure{
				FileName: attachment.FileName,
				Reason:   fmt.Sprintf(attachmentFileOpenFailureReasonTemplate, openError),
			})
			continue
		}

		uploadFileName := attachment.FileName
		if len(uploadFileName) == 0 {
			uploadFileName = filepath.Base(attachment.FilePath)
		}

		filePart, partError := multipartWriter.CreateFormFile(multipartFileFieldNameConstant, uploadFileName)
		if partError == nil {
			_, partError = io.Copy(filePart, attachmentFile)
		}
		attachmentFile.Close()
		if partError != nil {
			uploadResult.Failed = append(uploadResult.Failed, AttachmentFailure{FileName: uploadFileName, Reason: partError.Error()})
			continue
		}

		includedFileNames = append(includedFileNames, uploadFileName)
	}

	if closeError := multipartWriter.Close(); closeError != nil {
		return FatalError{Cause: fmt.Errorf(payloadEncodingErrorTemplateConstant, uploadAttachmentsOperationNameConstant, closeError)}
	}

	if len(includedFileNames) == 0 {
		return nil
	}

	callContext, cancelCall := context.WithTimeout(executionContext, client.callTimeout)
	defer cancelCall()

	endpoint := fmt.Sprintf(attachmentEndpointTemplateConstant, client.baseURL, url.PathEscape(issueKey))
	request, requestError := http.NewRequestWithContext(callContext, http.MethodPost, endpoint, bodyBuffer)
	if requestError != nil {
		return FatalError{Cause: fmt.Errorf(requestConstructionErrorTemplateConstant, uploadAttachmentsOperationNameConstant, requestError)}
	}
	request.Header.Set(contentTypeHeaderNameConstant, multipartWriter.FormDataContentType())
	request.Header.Set(attachmentTokenHeaderNameConstant, attachmentTokenHeaderValueConstant)
	request.SetBasicAuth(client.email, client.apiToken)

	response, executionError := client.httpClient.Do(request)
	if executionError != nil {
		return RetryableError{Cause: fmt.Errorf(requestExecutionErrorTemplateConstant, uploadAttachmentsOperationNameConstant, executionError)}
	}
	defer response.Body.Close()

	if statusError := classifyResponseStatus(uploadAttachmentsOperationNameConstant, response); statusError != nil {
		return statusError
	}

	uploadResult.Uploaded = append(uploadResult.Uploaded, includedFileNames...)
	return nil
}

type issueSearchResponse struct {
	Issues []issueSearchResult `json:"issues"`
}

type issueSearchResult struct {
	Key    string            `json:"key"`
	Fields issueSearchFields `json:"fields"`
}

type issueSearchFields struct {
	Summary string `json:"summary"`
	Created string `json:"created"`
}

// SearchIssues lists remote issues inside the provided key range, following pagination.
func (client *Client) SearchIssues(executionContext context.Context, searchQuery IssueSearchQuery) ([]IssueSummary, error) {
	if len(strings.TrimSpace(searchQuery.ProjectKey)) == 0 {
		return nil, FatalError{Cause: errors.New(issueSearchProjectRequiredMessageConstant)}
	}
	if len(strings.TrimSpace(searchQuery.StartKey)) == 0 || len(strings.TrimSpace(searchQuery.EndKey)) == 0 {
		return nil, FatalError{Cause: errors.New(issueSearchKeyBoundsRequiredMessageConstant)}
	}

	pageSize := searchQuery.PageSize
	if pageSize <= 0 {
		pageSize = defaultSearchPageSizeConstant
	}

	var collectedIssues []IssueSummary
	startAt := 0
	for {
		pageIssues, pageError := client.searchIssuePage(executionContext, searchQuery, startAt, pageSize)
		if pageError != nil {
			return nil, pageError
		}
		collectedIssues = append(collectedIssues, pageIssues...)
		if len(pageIssues) < pageSize {
			return collectedIssues, nil
		}
		startAt += pageSize
	}
}

func (client *Client) searchIssuePage(executionContext context.Context, searchQuery IssueSearchQuery, startAt int, pageSize int) ([]IssueSummary, error) {
	callContext, cancelCall := context.WithTimeout(executionContext, client.callTimeout)
	defer cancelCall()

	endpoint := fmt.Sprintf(searchEndpointTemplateConstant, client.baseURL)
	request, requestError := http.NewRequestWithContext(callContext, http.MethodGet, endpoint, nil)
	if requestError != nil {
		return nil, FatalError{Cause: fmt.Errorf(requestConstructionErrorTemplateConstant, searchIssuesOperationNameConstant, requestError)}
	}

	queryParameters := request.URL.Query()
	queryParameters.Set(searchQueryParameterNameConstant, fmt.Sprintf(searchKeyRangeQueryTemplateConstant, searchQuery.ProjectKey, searchQuery.StartKey, searchQuery.EndKey))
	queryParameters.Set(searchStartAtParameterNameConstant, strconv.Itoa(startAt))
	queryParameters.Set(searchMaxResultsParameterNameConstant, strconv.Itoa(pageSize))
	queryParameters.Set(searchFieldsParameterNameConstant, searchFieldsValueConstant)
	request.URL.RawQuery = queryParameters.Encode()
	request.Header.Set(acceptHeaderNameConstant, jsonContentTypeConstant)
	request.SetBasicAuth(client.email, client.apiToken)

	response, executionError := client.httpClient.Do(request)
	if executionError != nil {
		return nil, RetryableError{Cause: fmt.Errorf(requestExecutionErrorTemplateConstant, searchIssuesOperationNameConstant, executionError)}
	}
	defer response.Body.Close()

	if statusError := classifyResponseStatus(searchIssuesOperationNameConstant, response); statusError != nil {
		return nil, statusError
	}

	var decodedResponse issueSearchResponse
	if decodeError := json.NewDecoder(response.Body).Decode(&decodedResponse); decodeError != nil {
		return nil, FatalError{Cause: fmt.Errorf(responseDecodingErrorTemplateConstant, searchIssuesOperationNameConstant, decodeError)}
	}

	pageIssues := make([]IssueSummary, 0, len(decodedResponse.Issues))
	for _, decodedIssue := range decodedResponse.Issues {
		pageIssues = append(pageIssues, IssueSummary{
			Key:       decodedIssue.Key,
			Summary:   decodedIssue.Fields.Summary,
			CreatedAt: decodedIssue.Fields.Created,
		})
	}

	return pageIssues, nil
}

func classifyResponseStatus(operationName string, response *http.Response) error {
	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	bodyPreview, _ := io.ReadAll(io.LimitReader(response.Body, responseBodyPreviewByteLimitConstant))
	statusError := fmt.Errorf(unexpectedStatusMessageTemplateConstant, operationName, response.StatusCode, strings.TrimSpace(string(bodyPreview)))

	switch {
	case response.StatusCode == rateLimitedHTTPStatusConstant:
		return RetryableError{Cause: statusError, RetryAfter: parseRetryAfterHeader(response)}
	case response.StatusCode == requestTimeoutHTTPStatusConstant:
		return RetryableError{Cause: statusError}
	case response.StatusCode >= http.StatusInternalServerError:
		return RetryableError{Cause: statusError}
	case response.StatusCode == http.StatusNotFound:
		return FatalError{Cause: fmt.Errorf("%w: %s", ErrNotFound, statusError)}
	default:
		return FatalError{Cause: statusError}
	}
}

func parseRetryAfterHeader(response *http.Response) time.Duration {
	headerValue := strings.TrimSpace(response.Header.Get(retryAfterHeaderNameConstant))
	if len(headerValue) == 0 {
		return 0
	}
	parsedSeconds, parseError := strconv.Atoi(headerValue)
	if parseError != nil || parsedSeconds < 0 {
		return 0
	}
	return time.Duration(parsedSeconds) * time.Second
}
