package remote

// IssuePayload carries the destination-tracker fields for a new issue.
type IssuePayload struct {
	ProjectKey  string
	IssueType   string
	Summary     string
	Description string
	Priority    string
	Labels      []string
}

// AttachmentRef identifies one attachment file staged for upload.
type AttachmentRef struct {
	AttachmentID string
	FileName     string
	FilePath     string
	SizeBytes    int64
}

// AttachmentFailure records a single attachment that could not be uploaded.
type AttachmentFailure struct {
	FileName string
	Reason   string
}

// UploadResult summarizes an attachment upload pass for one issue.
type UploadResult struct {
	Uploaded []string
	Failed   []AttachmentFailure
}

// Complete reports whether every attachment in the pass was uploaded.
func (uploadResult UploadResult) Complete() bool {
	return len(uploadResult.Failed) == 0
}

// IssueSummary describes minimal details of an existing remote issue.
type IssueSummary struct {
	Key       string
	Summary   string
	CreatedAt string
}

// IssueSearchQuery bounds a key-range listing of remote issues.
type IssueSearchQuery struct {
	ProjectKey string
	StartKey   string
	EndKey     string
	PageSize   int
}
