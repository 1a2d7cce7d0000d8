package models

// LogFile is one raw input file: the node it describes and its lines.
type LogFile struct {
	Node  string
	Path  string
	Lines []string
}

// SampleBlock is a contiguous run of lines describing one observation instant.
type SampleBlock struct {
	Index     int
	Lines     []string
	Timestamp *int64 // nil when the block has no parseable ts= marker
}
