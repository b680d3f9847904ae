package database

// Dataset is a cached, normalized upload keyed by content hash.
type Dataset struct {
	ContentHash string
	FileName    string
	SizeBytes   int64
	RowCount    int
	Payload     []byte
	LoadedAt    *string
}

// Stats summarizes the cache.
type Stats struct {
	Datasets  int
	Sessions  int
	TotalRows int
	Bytes     int64
}
