package models

// Stats summarizes a learner's chunk collection.
type Stats struct {
	TotalChunks   int     `json:"total_chunks"`
	DueNow        int     `json:"due_now"`
	Mastered      int     `json:"mastered"` // 5+ repetitions with a 30+ day interval
	AvgEaseFactor float64 `json:"avg_ease_factor"`
}
