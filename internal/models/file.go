package models

import "time"

type FileStatus string

const (
	FileStatusActive  FileStatus = "active"
	FileStatusDeleted FileStatus = "deleted"
)

type File struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	OriginalName string     `json:"originalName"`
	FileType     string     `json:"fileType"`
	FileSize     int64      `json:"fileSize"`
	ObjectKey    string     `json:"-"`
	UploaderID   string     `json:"uploaderId"`
	UploadTime   time.Time  `json:"uploadTime"`
	Status       FileStatus `json:"status"`
}
