package immich

import "time"

// Asset is the remote asset representation returned by search and album
// listings, trimmed to the fields reconciliation needs.
type Asset struct {
	ID               string    `json:"id"`
	Checksum         string    `json:"checksum"`
	OriginalFileName string    `json:"originalFileName"`
	LocalDateTime    time.Time `json:"localDateTime"`
	FileCreatedAt    time.Time `json:"fileCreatedAt"`
	IsFavorite       bool      `json:"isFavorite"`
	DeviceID         string    `json:"deviceId"`
	Type             string    `json:"type"`
	ExifInfo         *ExifInfo `json:"exifInfo,omitempty"`
	Stack            *Stack    `json:"stack,omitempty"`
}

// ExifInfo carries the camera/client metadata used for provenance hints.
type ExifInfo struct {
	Make             string `json:"make"`
	Model            string `json:"model"`
	FileSizeInByte   int64  `json:"fileSizeInByte"`
	TimeZone         string `json:"timeZone"`
	DateTimeOriginal string `json:"dateTimeOriginal"`
}

// Stack describes an asset's stack membership.
type Stack struct {
	ID             string `json:"id"`
	PrimaryAssetID string `json:"primaryAssetId"`
}

// Album is a remote album summary.
type Album struct {
	ID         string `json:"id"`
	AlbumName  string `json:"albumName"`
	AssetCount int    `json:"assetCount"`
}

// AlbumDetail is an album with its member assets.
type AlbumDetail struct {
	Album
	Assets []Asset `json:"assets"`
}

// CheckItem is one entry of a bulk duplicate check request.
type CheckItem struct {
	ID       string `json:"id"`
	Checksum string `json:"checksum"`
}

// CheckResult is the server's verdict for one CheckItem.
type CheckResult struct {
	ID      string `json:"id"`
	AssetID string `json:"assetId"`
	Action  string `json:"action"`
	Reason  string `json:"reason"`
}

// UploadResult is the response to an asset upload.
type UploadResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

const (
	// CheckActionAccept means the server does not hold the checksum yet.
	CheckActionAccept = "accept"
	// CheckActionReject with ReasonDuplicate means the checksum exists.
	CheckActionReject = "reject"
	// ReasonDuplicate identifies duplicate rejections.
	ReasonDuplicate = "duplicate"
	// UploadStatusDuplicate is returned when an upload hit an existing asset.
	UploadStatusDuplicate = "duplicate"
)
