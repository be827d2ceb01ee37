package mucore

// AttachmentRecord is an entry in the attachment content-addressed store
// (spec §3).
type AttachmentRecord struct {
	AttachmentID   string `json:"attachment_id"`
	Channel        string `json:"channel"`
	SourceFileID   string `json:"source_file_id,omitempty"`
	ContentSHA256  string `json:"content_sha256"`
	SafeFilename   string `json:"safe_filename"`
	MimeType       string `json:"mime_type"`
	SizeBytes      int64  `json:"size_bytes"`
	BlobRelPath    string `json:"blob_relpath"`
	TTLMs          int64  `json:"ttl_ms"`
	ExpiresAtMs    int64  `json:"expires_at_ms"`
	CreatedAtMs    int64  `json:"created_at_ms"`
}
