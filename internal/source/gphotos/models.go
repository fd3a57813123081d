package gphotos

// SearchRequest is the body of POST /v1/mediaItems:search.
type SearchRequest struct {
	AlbumID   string `json:"albumId"`
	PageSize  int    `json:"pageSize,omitempty"`
	PageToken string `json:"pageToken,omitempty"`
}

type SearchResponse struct {
	MediaItems    []APIMediaItem `json:"mediaItems"`
	NextPageToken string         `json:"nextPageToken"`
}

type APIMediaItem struct {
	ID            string         `json:"id"`
	Description   string         `json:"description"`
	ProductURL    string         `json:"productUrl"`
	BaseURL       string         `json:"baseUrl"`
	MimeType      string         `json:"mimeType"`
	Filename      string         `json:"filename"`
	MediaMetadata *MediaMetadata `json:"mediaMetadata"`
}

type MediaMetadata struct {
	CreationTime string `json:"creationTime"`
	Width        string `json:"width"`
	Height       string `json:"height"`
}
