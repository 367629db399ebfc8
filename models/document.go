package models

// Document is one uploaded file as received by the ingest endpoint.
type Document struct {
	Filename    string // sanitized storage name
	ContentType string
	Content     []byte
}

// ChunkMetadata is stored alongside every index entry.
type ChunkMetadata struct {
	File  string `json:"file" bson:"file"`
	Page  int    `json:"page" bson:"page"`
	Chunk int    `json:"chunk" bson:"chunk"`
}

// Chunk is the unit of retrieval. Overlap is the number of leading runes of
// Text repeated from the previous chunk of the same page.
type Chunk struct {
	ID      string
	File    string
	Page    int
	Ordinal int
	Text    string
	Overlap int
}

func (c Chunk) Metadata() ChunkMetadata {
	return ChunkMetadata{File: c.File, Page: c.Page, Chunk: c.Ordinal}
}

// ChunkRecord is one line of a document's chunk JSONL file.
type ChunkRecord struct {
	ID   string `json:"id"`
	Page int    `json:"page"`
	Text string `json:"text"`
}

const (
	IngestStatusOK      = "ok"
	IngestStatusSkipped = "skipped (not a PDF)"
	IngestStatusFailed  = "failed"
	IngestStatusQueued  = "queued"
)

// IngestStats is reported for successfully ingested documents.
type IngestStats struct {
	Pages      int    `json:"pages"`
	Chars      int    `json:"chars"`
	PDFPath    string `json:"pdf_path"`
	TextPath   string `json:"txt_path"`
	ChunkCount int    `json:"chunk_count"`
	ChunkPath  string `json:"chunk_path"`
	Indexed    int    `json:"indexed"`
}

// IngestResult is the per-document status of an ingest batch.
type IngestResult struct {
	File   string `json:"file"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	*IngestStats
}

type IngestResponse struct {
	Accepted int            `json:"accepted"`
	Results  []IngestResult `json:"results"`
}

// IngestTaskPayload is the asynq payload of a queued ingestion.
type IngestTaskPayload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	PDFPath     string `json:"pdf_path"`
}

type IngestTaskInfo struct {
	ID     string        `json:"id"`
	Queue  string        `json:"queue"`
	State  string        `json:"state"`
	File   string        `json:"file,omitempty"`
	Error  string        `json:"error,omitempty"`
	Result *IngestResult `json:"result,omitempty"`
}

// AsyncIngestItem reports what happened to one upload on the async path.
type AsyncIngestItem struct {
	File   string `json:"file"`
	Status string `json:"status"`
	TaskID string `json:"task_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

type AsyncIngestResponse struct {
	Accepted int               `json:"accepted"`
	Results  []AsyncIngestItem `json:"results"`
}
