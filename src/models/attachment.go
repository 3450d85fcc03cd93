package models

type DownloadStatus string

const (
	DownloadPending    DownloadStatus = "pending"
	DownloadDownloaded DownloadStatus = "downloaded"
	DownloadFailed     DownloadStatus = "failed"
	DownloadSkipped    DownloadStatus = "skipped"
)

type Attachment struct {
	ID          int64   `db:"id" gorm:"primaryKey;autoIncrement:false"`
	MessageID   int64   `db:"message_id" gorm:"not null;index"`
	Filename    string  `db:"filename" gorm:"not null"`
	ContentType *string `db:"content_type"`
	Size        int     `db:"size" gorm:"not null"`
	URL         string  `db:"url" gorm:"column:url;not null"`
	ProxyURL    *string `db:"proxy_url" gorm:"column:proxy_url"`
	Width       *int    `db:"width"`
	Height      *int    `db:"height"`

	// LocalPath is relative to the download root.
	LocalPath      *string        `db:"local_path"`
	DownloadStatus DownloadStatus `db:"download_status" gorm:"not null;index"`
	ContentHash    *string        `db:"content_hash"`
}

func (Attachment) TableName() string { return "attachments" }
