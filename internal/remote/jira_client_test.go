package remote_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/ticketbridge/internal/remote"
)

const (
	testClientEmailConstant    = "operator@example.com"
	testClientAPITokenConstant = "token-value"
	testProjectKeyConstant     = "FTJM"
	testIssueKeyConstant       = "FTJM-17"
)

func newTestClient(testInstance *testing.T, serverURL string) *remote.Client {
	testInstance.Helper()

	client, clientError := remote.NewClient(remote.ClientOptions{
		BaseURL:  serverURL,
		Email:    testClientEmailConstant,
		APIToken: testClientAPITokenConstant,
	})
	require.NoError(testInstance, clientError)
	return client
}

func TestNewClientValidatesOptions(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name    string
		options remote.ClientOptions
	}{
		{name: "missing_base_url", options: remote.ClientOptions{Email: testClientEmailConstant, APIToken: testClientAPITokenConstant}},
		{name: "missing_email", options: remote.ClientOptions{BaseURL: "https://example.atlassian.net", APIToken: testClientAPITokenConstant}},
		{name: "missing_api_token", options: remote.ClientOptions{BaseURL: "https://example.atlassian.net", Email: testClientEmailConstant}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			subtest.Parallel()

			client, clientError := remote.NewClient(testCase.options)
			require.Error(subtest, clientError)
			require.Nil(subtest, client)
		})
	}
}

func TestClientCreateIssueSendsFieldsAndReturnsKey(testInstance *testing.T) {
	testInstance.Parallel()

	var receivedRequest struct {
		Fields struct {
			Project struct {
				Key string `json:"key"`
			} `json:"project"`
			IssueType struct {
				Name string `json:"name"`
			} `json:"issuetype"`
			Summary  string   `json:"summary"`
			Priority *struct {
				Name string `json:"name"`
			} `json:"priority"`
			Labels []string `json:"labels"`
		} `json:"fields"`
	}

	testServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, http.MethodPost, request.Method)
		require.Equal(testInstance, "/rest/api/3/issue", request.URL.Path)
		requestEmail, requestToken, basicAuthProvided := request.BasicAuth()
		require.True(testInstance, basicAuthProvided)
		require.Equal(testInstance, testClientEmailConstant, requestEmail)
		require.Equal(testInstance, testClientAPITokenConstant, requestToken)
		require.NoError(testInstance, json.NewDecoder(request.Body).Decode(&receivedRequest))

		responseWriter.Header().Set("Content-Type", "application/json")
		responseWriter.WriteHeader(http.StatusCreated)
		fmt.Fprintf(responseWriter, `{"id":"10001","key":%q}`, testIssueKeyConstant)
	}))
	defer testServer.Close()

	client := newTestClient(testInstance, testServer.URL)

	issueKey, createError := client.CreateIssue(context.Background(), remote.IssuePayload{
		ProjectKey: testProjectKeyConstant,
		IssueType:  "Task",
		Summary:    "Printer on fire",
		Priority:   "High",
		Labels:     []string{"migrated"},
	})

	require.NoError(testInstance, createError)
	require.Equal(testInstance, testIssueKeyConstant, issueKey)
	require.Equal(testInstance, testProjectKeyConstant, receivedRequest.Fields.Project.Key)
	require.Equal(testInstance, "Task", receivedRequest.Fields.IssueType.Name)
	require.Equal(testInstance, "Printer on fire", receivedRequest.Fields.Summary)
	require.NotNil(testInstance, receivedRequest.Fields.Priority)
	require.Equal(testInstance, "High", receivedRequest.Fields.Priority.Name)
	require.Equal(testInstance, []string{"migrated"}, receivedRequest.Fields.Labels)
}

func TestClientCreateIssueOmitsPriorityWhenUnset(testInstance *testing.T) {
	testInstance.Parallel()

	var rawRequestFields map[string]json.RawMessage
	testServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		var decodedBody map[string]map[string]json.RawMessage
		require.NoError(testInstance, json.NewDecoder(request.Body).Decode(&decodedBody))
		rawRequestFields = decodedBody["fields"]
		responseWriter.WriteHeader(http.StatusCreated)
		fmt.Fprintf(responseWriter, `{"key":%q}`, testIssueKeyConstant)
	}))
	defer testServer.Close()

	client := newTestClient(testInstance, testServer.URL)

	_, createError := client.CreateIssue(context.Background(), remote.IssuePayload{
		ProjectKey: testProjectKeyConstant,
		IssueType:  "Task",
		Summary:    "Printer on fire",
	})

	require.NoError(testInstance, createError)
	require.NotContains(testInstance, rawRequestFields, "priority")
}

func TestClientCreateIssueClassifiesFailures(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name             string
		statusCode       int
		retryAfterHeader string
		expectRetryable  bool
		expectedHint     time.Duration
	}{
		{name: "rate_limited_with_hint", statusCode: http.StatusTooManyRequests, retryAfterHeader: "7", expectRetryable: true, expectedHint: 7 * time.Second},
		{name: "server_error", statusCode: http.StatusBadGateway, expectRetryable: true},
		{name: "request_timeout", statusCode: http.StatusRequestTimeout, expectRetryable: true},
		{name: "bad_request", statusCode: http.StatusBadRequest, expectRetryable: false},
		{name: "unauthorized", statusCode: http.StatusUnauthorized, expectRetryable: false},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			subtest.Parallel()

			testServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
				if len(testCase.retryAfterHeader) > 0 {
					responseWriter.Header().Set("Retry-After", testCase.retryAfterHeader)
				}
				responseWriter.WriteHeader(testCase.statusCode)
			}))
			defer testServer.Close()

			client := newTestClient(subtest, testServer.URL)

			_, createError := client.CreateIssue(context.Background(), remote.IssuePayload{
				ProjectKey: testProjectKeyConstant,
				IssueType:  "Task",
				Summary:    "Printer on fire",
			})

			require.Error(subtest, createError)
			require.Equal(subtest, testCase.expectRetryable, remote.IsRetryable(createError))
			require.Equal(subtest, !testCase.expectRetryable, remote.IsFatal(createError))

			hint, hintPresent := remote.RetryAfterHint(createError)
			if testCase.expectedHint > 0 {
				require.True(subtest, hintPresent)
				require.Equal(subtest, testCase.expectedHint, hint)
			} else {
				require.False(subtest, hintPresent)
			}
		})
	}
}

func TestClientDeleteIssueTreatsNotFoundAsSuccess(testInstance *testing.T) {
	testInstance.Parallel()

	testServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, http.MethodDelete, request.Method)
		require.Equal(testInstance, "/rest/api/3/issue/"+testIssueKeyConstant, request.URL.Path)
		responseWriter.WriteHeader(http.StatusNotFound)
	}))
	defer testServer.Close()

	client := newTestClient(testInstance, testServer.URL)

	require.NoError(testInstance, client.DeleteIssue(context.Background(), testIssueKeyConstant))
}

func TestClientDeleteIssueReportsServerFailuresAsRetryable(testInstance *testing.T) {
	testInstance.Parallel()

	testServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		responseWriter.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer testServer.Close()

	client := newTestClient(testInstance, testServer.URL)

	deleteError := client.DeleteIssue(context.Background(), testIssueKeyConstant)
	require.Error(testInstance, deleteError)
	require.True(testInstance, remote.IsRetryable(deleteError))
}

func TestClientUploadAttachmentsSendsMultipartBatch(testInstance *testing.T) {
	testInstance.Parallel()

	fixtureDirectory := testInstance.TempDir()
	firstFilePath := filepath.Join(fixtureDirectory, "screenshot.png")
	secondFilePath := filepath.Join(fixtureDirectory, "boot.log")
	require.NoError(testInstance, os.WriteFile(firstFilePath, []byte("image-bytes"), 0o644))
	require.NoError(testInstance, os.WriteFile(secondFilePath, []byte("log-bytes"), 0o644))

	var receivedFileNames []string
	var receivedTokenHeader string
	testServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, http.MethodPost, request.Method)
		require.Equal(testInstance, "/rest/api/3/issue/"+testIssueKeyConstant+"/attachments", request.URL.Path)
		receivedTokenHeader = request.Header.Get("X-Atlassian-Token")

		require.NoError(testInstance, request.ParseMultipartForm(1<<20))
		for _, filePart := range request.MultipartForm.File["file"] {
			receivedFileNames = append(receivedFileNames, filePart.Filename)
		}
		responseWriter.WriteHeader(http.StatusOK)
		fmt.Fprint(responseWriter, `[]`)
	}))
	defer testServer.Close()

	client := newTestClient(testInstance, testServer.URL)

	uploadResult, uploadError := client.UploadAttachments(context.Background(), testIssueKeyConstant, []remote.AttachmentRef{
		{FileName: "screenshot.png", FilePath: firstFilePath, SizeBytes: 11},
		{FileName: "boot.log", FilePath: secondFilePath, SizeBytes: 9},
	})

	require.NoError(testInstance, uploadError)
	require.Equal(testInstance, "no-check", receivedTokenHeader)
	require.ElementsMatch(testInstance, []string{"screenshot.png", "boot.log"}, receivedFileNames)
	require.ElementsMatch(testInstance, []string{"screenshot.png", "boot.log"}, uploadResult.Uploaded)
	require.Empty(testInstance, uploadResult.Failed)
}

func TestClientUploadAttachmentsReportsUnreadableFilesIndividually(testInstance *testing.T) {
	testInstance.Parallel()

	fixtureDirectory := testInstance.TempDir()
	presentFilePath := filepath.Join(fixtureDirectory, "screenshot.png")
	require.NoError(testInstance, os.WriteFile(presentFilePath, []byte("image-bytes"), 0o644))

	testServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		responseWriter.WriteHeader(http.StatusOK)
		fmt.Fprint(responseWriter, `[]`)
	}))
	defer testServer.Close()

	client := newTestClient(testInstance, testServer.URL)

	uploadResult, uploadError := client.UploadAttachments(context.Background(), testIssueKeyConstant, []remote.AttachmentRef{
		{FileName: "screenshot.png", FilePath: presentFilePath, SizeBytes: 11},
		{FileName: "missing.bin", FilePath: filepath.Join(fixtureDirectory, "missing.bin"), SizeBytes: 5},
	})

	require.NoError(testInstance, uploadError)
	require.Equal(testInstance, []string{"screenshot.png"}, uploadResult.Uploaded)
	require.Len(testInstance, uploadResult.Failed, 1)
	require.Equal(testInstance, "missing.bin", uploadResult.Failed[0].FileName)
	require.NotEmpty(testInstance, uploadResult.Failed[0].Reason)
}

func TestClientUploadAttachmentsSplitsBatchesByCount(testInstance *testing.T) {
	testInstance.Parallel()

	fixtureDirectory := testInstance.TempDir()
	attachments := make([]remote.AttachmentRef, 0, 3)
	for attachmentIndex := 0; attachmentIndex < 3; attachmentIndex++ {
		attachmentPath := filepath.Join(fixtureDirectory, fmt.Sprintf("file_%d.txt", attachmentIndex))
		require.NoError(testInstance, os.WriteFile(attachmentPath, []byte("payload"), 0o644))
		attachments = append(attachments, remote.AttachmentRef{
			FileName:  filepath.Base(attachmentPath),
			FilePath:  attachmentPath,
			SizeBytes: 7,
		})
	}

	var requestCount int
	testServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		requestCount++
		require.NoError(testInstance, request.ParseMultipartForm(1<<20))
		require.LessOrEqual(testInstance, len(request.MultipartForm.File["file"]), 2)
		responseWriter.WriteHeader(http.StatusOK)
		fmt.Fprint(responseWriter, `[]`)
	}))
	defer testServer.Close()

	client, clientError := remote.NewClient(remote.ClientOptions{
		BaseURL:              testServer.URL,
		Email:                testClientEmailConstant,
		APIToken:             testClientAPITokenConstant,
		AttachmentBatchCount: 2,
	})
	require.NoError(testInstance, clientError)

	uploadResult, uploadError := client.UploadAttachments(context.Background(), testIssueKeyConstant, attachments)

	require.NoError(testInstance, uploadError)
	require.Equal(testInstance, 2, requestCount)
	require.Len(testInstance, uploadResult.Uploaded, 3)
}

func TestClientSearchIssuesFollowsPagination(testInstance *testing.T) {
	testInstance.Parallel()

	pageSize := 2
	issuePages := map[int][]string{
		0: {"FTJM-1", "FTJM-2"},
		2: {"FTJM-3"},
	}

	testServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, "/rest/api/3/search", request.URL.Path)
		require.Contains(testInstance, request.URL.Query().Get("jql"), "project = "+testProjectKeyConstant)

		startAt, startAtError := strconv.Atoi(request.URL.Query().Get("startAt"))
		require.NoError(testInstance, startAtError)

		pageIssues := make([]map[string]any, 0, len(issuePages[startAt]))
		for _, issueKey := range issuePages[startAt] {
			pageIssues = append(pageIssues, map[string]any{
				"key": issueKey,
				"fields": map[string]any{
					"summary": "Migrated ticket",
					"created": "2026-08-01T10:00:00.000+0000",
				},
			})
		}
		responseWriter.Header().Set("Content-Type", "application/json")
		require.NoError(testInstance, json.NewEncoder(responseWriter).Encode(map[string]any{"issues": pageIssues}))
	}))
	defer testServer.Close()

	client := newTestClient(testInstance, testServer.URL)

	issueSummaries, searchError := client.SearchIssues(context.Background(), remote.IssueSearchQuery{
		ProjectKey: testProjectKeyConstant,
		StartKey:   "FTJM-1",
		EndKey:     "FTJM-100",
		PageSize:   pageSize,
	})

	require.NoError(testInstance, searchError)
	require.Len(testInstance, issueSummaries, 3)
	require.Equal(testInstance, "FTJM-1", issueSummaries[0].Key)
	require.Equal(testInstance, "FTJM-3", issueSummaries[2].Key)
	require.Equal(testInstance, "Migrated ticket", issueSummaries[0].Summary)
}

func TestClientSearchIssuesValidatesQueryBounds(testInstance *testing.T) {
	testInstance.Parallel()

	client := newTestClient(testInstance, "https://example.invalid")

	_, missingProjectError := client.SearchIssues(context.Background(), remote.IssueSearchQuery{StartKey: "FTJM-1", EndKey: "FTJM-9"})
	require.Error(testInstance, missingProjectError)
	require.True(testInstance, remote.IsFatal(missingProjectError))

	_, missingBoundsError := client.SearchIssues(context.Background(), remote.IssueSearchQuery{ProjectKey: testProjectKeyConstant})
	require.Error(testInstance, missingBoundsError)
	require.True(testInstance, remote.IsFatal(missingBoundsError))
}
