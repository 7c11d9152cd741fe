package models

// Response shapes for the COROS API. The API is unversioned and
// reverse-engineered; every response wraps its payload in a result code
// envelope where "0000" means success.

// ResultOK is the result code the API returns on success.
const ResultOK = "0000"

// ResultTokenInvalid is returned when the access token has expired or is
// otherwise rejected.
const ResultTokenInvalid = "1019"

// LoginResponse is the envelope returned by POST /account/login.
type LoginResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
	Data    struct {
		AccessToken string `json:"accessToken"`
		UserID      string `json:"userId"`
	} `json:"data"`
}

// QueryResponse is one page of GET /activity/query.
type QueryResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
	Data    struct {
		Count     int        `json:"count"`
		TotalPage int        `json:"totalPage"`
		PageNum   int        `json:"pageNumber"`
		DataList  []Activity `json:"dataList"`
	} `json:"data"`
}

// DownloadResponse is the envelope returned by GET /activity/detail/download.
// The actual payload lives behind Data.FileURL.
type DownloadResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
	Data    struct {
		FileURL string `json:"fileUrl"`
	} `json:"data"`
}
