package client

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/corosback/logging"
	"github.com/corosback/models"
)

// bcryptSaltLen is the length of the "$2a$10$" prefix plus the 22
// character salt block that a bcrypt hash starts with.
const bcryptSaltLen = 29

// hashPassword mirrors the web frontend's login hashing: bcrypt (cost 10)
// over the md5 hex digest of the password. The API wants the full hash as
// p1 and the salt prefix as p2.
func hashPassword(password string) (p1, p2 string, err error) {
	sum := md5.Sum([]byte(password))
	digest := hex.EncodeToString(sum[:])

	hashed, err := bcrypt.GenerateFromPassword([]byte(digest), 10)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), string(hashed[:bcryptSaltLen]), nil
}

// Login exchanges credentials for a Session. The password is consumed
// here and nowhere else: it is hashed for the request body and never
// stored on the client, the session or any log line.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	if email == "" || password == "" {
		return Session{}, &models.AuthError{Message: "email and password are required"}
	}

	p1, p2, err := hashPassword(password)
	if err != nil {
		return Session{}, err
	}

	body := map[string]any{
		"account":     email,
		"accountType": 2,
		"p1":          p1,
		"p2":          p2,
	}

	var lr models.LoginResponse
	if err := c.postJSON(ctx, loginPath, body, &lr); err != nil {
		return Session{}, err
	}
	if lr.Result != models.ResultOK {
		msg := lr.Message
		if msg == "" {
			msg = "unknown error"
		}
		return Session{}, &models.AuthError{Message: msg}
	}
	if lr.Data.AccessToken == "" {
		return Session{}, &models.APIError{Message: "login response missing accessToken"}
	}

	logging.Info().Str("account", email).Msg("authenticated with COROS")
	return Session{AccessToken: lr.Data.AccessToken, UserID: lr.Data.UserID}, nil
}

// ListActivities walks the paginated query endpoint until exhaustion and
// returns every activity exactly once, in first-seen order.
//
// Termination is an explicit predicate, not an assumption: the loop stops
// when the reported totalPage is reached, when a page comes back empty,
// or when a page contributes no new ids (a fully overlapping page from a
// server that never reports totalPage). Any one of these ends the walk;
// a single request never does.
func (c *Client) ListActivities(ctx context.Context, session Session) ([]models.Activity, error) {
	var all []models.Activity
	seen := make(map[string]bool)

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("size", strconv.Itoa(c.pageSize))
		query.Set("pageNumber", strconv.Itoa(page))
		query.Set("modeList", "")

		var qr models.QueryResponse
		if err := c.getJSON(ctx, queryPath, query, session, &qr); err != nil {
			return nil, err
		}
		if err := checkResult(qr.Result, qr.Message); err != nil {
			return nil, err
		}

		if len(qr.Data.DataList) == 0 {
			break
		}

		added := 0
		for _, act := range qr.Data.DataList {
			if act.LabelID == "" {
				return nil, &models.APIError{Message: "activity without labelId in query response"}
			}
			if seen[act.LabelID] {
				continue
			}
			seen[act.LabelID] = true
			all = append(all, act)
			added++
		}

		logging.Debug().Int("page", page).Int("total_pages", qr.Data.TotalPage).Int("new", added).Msg("fetched activity page")

		if qr.Data.TotalPage > 0 && page >= qr.Data.TotalPage {
			break
		}
		if added == 0 {
			break
		}
	}

	logging.Info().Int("count", len(all)).Msg("listed remote activities")
	return all, nil
}

// Download fetches one export payload for an activity. The endpoint
// answers with a fileUrl; the payload itself is streamed from there. The
// caller owns the returned reader and must close it.
func (c *Client) Download(ctx context.Context, session Session, activity models.Activity, format models.ExportFormat) (io.ReadCloser, error) {
	query := url.Values{}
	query.Set("labelId", activity.LabelID)
	query.Set("sportType", strconv.Itoa(activity.SportType))
	query.Set("fileType", strconv.Itoa(format.FileType()))

	var dr models.DownloadResponse
	if err := c.getJSON(ctx, downloadPath, query, session, &dr); err != nil {
		return nil, err
	}
	if err := checkResult(dr.Result, dr.Message); err != nil {
		return nil, err
	}
	if dr.Data.FileURL == "" {
		return nil, &models.APIError{Message: fmt.Sprintf("no %s file available for activity %s", format, activity.LabelID)}
	}

	resp, err := c.do(ctx, "GET fileUrl", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, dr.Data.FileURL, http.NoBody)
		if err != nil {
			return nil, err
		}
		session.apply(req)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
