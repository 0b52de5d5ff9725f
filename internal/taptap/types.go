package taptap

import "encoding/json"

// Listing is the summary row produced by scanning a user page payload.
type Listing struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Profile is a user page identity lookup result.
type Profile struct {
	UserID    string `json:"user_id"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
}

// Wire shapes for the origin's webapiv2 endpoints. Only the fields the
// extractor reads are declared; the rest of the envelope is ignored.

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type detailData struct {
	Moment    momentData `json:"moment"`
	FirstPost firstPost  `json:"first_post"`
}

type momentData struct {
	Topic       topicData  `json:"topic"`
	Author      authorData `json:"author"`
	Stat        statData   `json:"stat"`
	CreatedTime int64      `json:"created_time"`
	PublishTime int64      `json:"publish_time"`
}

type topicData struct {
	Title        string     `json:"title"`
	FooterImages []imageRef `json:"footer_images"`
	PinVideo     pinVideo   `json:"pin_video"`
}

type pinVideo struct {
	VideoID   json.Number `json:"video_id"`
	Thumbnail imageRef    `json:"thumbnail"`
}

type authorData struct {
	User userRef `json:"user"`
}

type userRef struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type statData struct {
	Ups       int64 `json:"ups"`
	Comments  int64 `json:"comments"`
	Shares    int64 `json:"shares"`
	PVTotal   int64 `json:"pv_total"`
	PlayTotal int64 `json:"play_total"`
}

type firstPost struct {
	Contents contentsData `json:"contents"`
}

type contentsData struct {
	JSON []contentItem `json:"json"`
}

type contentItem struct {
	Type     string        `json:"type"`
	Children []contentItem `json:"children"`
	Text     string        `json:"text"`
	Info     contentInfo   `json:"info"`
}

type contentInfo struct {
	Image imageRef `json:"image"`
	Img   imageRef `json:"img"`
}

type imageRef struct {
	OriginalURL string `json:"original_url"`
}

type playInfoData struct {
	URL string `json:"url"`
}

type commentListData struct {
	List []commentItem `json:"list"`
}

type commentItem struct {
	ID          json.Number   `json:"id"`
	Author      commentAuthor `json:"author"`
	CreatedTime int64         `json:"created_time"`
	UpdatedTime int64         `json:"updated_time"`
	Ups         int64         `json:"ups"`
	Contents    contentsData  `json:"contents"`
}

type commentAuthor struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}
