// Package types holds the face detections shared by the engine, the catalogs
// and the ingestion policy.
package types

// EmbeddingDim is the length of a face_recognition encoding.
const EmbeddingDim = 128

// FaceResult is one detected face as decoded from the Python worker.
type FaceResult struct {
	Loc []int     `json:"loc"` // [top, right, bottom, left]
	Vec []float64 `json:"vec"` // 128-d face encoding
}

// Box returns the face location as (top, right, bottom, left).
func (f FaceResult) Box() (top, right, bottom, left int) {
	if len(f.Loc) != 4 {
		return 0, 0, 0, 0
	}
	return f.Loc[0], f.Loc[1], f.Loc[2], f.Loc[3]
}
