package models

// These structs define the contract with the remote conversion backends and
// the JSON payloads of the HTTP function.

// JobState is the remote job state, normalised across backends.
type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobSucceeded  JobState = "succeeded"
	JobFailed     JobState = "failed"
)

// SubmitRequest describes one conversion to start remotely.
type SubmitRequest struct {
	Category      Category
	SourceLocator string
	SourceFormat  string
	TargetFormat  string
	DisplayName   string
}

// JobStatus is one answer to a status query.
type JobStatus struct {
	State         JobState `json:"state"`
	ResultLocator string   `json:"resultLocator,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// SupportedFormats is the wire shape of a catalog refresh for one category.
type SupportedFormats struct {
	SourceFormats      []string            `json:"sourceFormats"`
	ConversionMap      map[string][]string `json:"conversionMap"`
	ExtensionWhitelist map[string][]string `json:"extensionWhitelist"`
	DisplayNames       map[string]string   `json:"displayNames"`
}

// BatchConvertRequest is the input for the batch-converter function.
type BatchConvertRequest struct {
	Category     Category     `json:"category"`
	SourceFormat string       `json:"sourceFormat"`
	TargetFormat string       `json:"targetFormat"`
	Files        []PickedFile `json:"files"`
}

// BatchConvertResponse is the output of the batch-converter function.
type BatchConvertResponse struct {
	Status  string           `json:"status"`
	Result  BatchResult      `json:"result"`
	Items   []ConversionItem `json:"items"`
	Skipped []SkippedFile    `json:"skipped,omitempty"`
	Stored  map[int]string   `json:"stored,omitempty"`
}

// SkippedFile is a picked file rejected during intake.
type SkippedFile struct {
	File   PickedFile `json:"file"`
	Reason string     `json:"reason"`
}

// GCSEvent is the payload of a storage object finalize event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
	Size   string `json:"size"`
}
