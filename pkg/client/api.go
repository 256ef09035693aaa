package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Sternrassler/postfeed/pkg/model"
	"github.com/Sternrassler/postfeed/pkg/pagination"
)

type itemsResponse struct {
	Items []model.Item `json:"items"`
}

type postsResponse struct {
	Items []model.Post `json:"items"`
}

// API calls the feed and post endpoints. Requests are built by the
// transport and sent through doer, normally a session.Renewer so that
// protected calls carry the bearer token.
type API struct {
	client *Client
	doer   Doer
}

// NewAPI creates the feed endpoint client. A nil doer sends directly
// through c without credentials.
func NewAPI(c *Client, doer Doer) *API {
	if doer == nil {
		doer = c
	}
	return &API{client: c, doer: doer}
}

// Home fetches one page of published items.
func (a *API) Home(ctx context.Context, req pagination.PageRequest) (model.Page, error) {
	req = req.Normalize()

	var page model.Page
	if err := a.call(ctx, http.MethodGet, "/home", req.Query(), nil, &page); err != nil {
		return model.Page{}, err
	}
	if page.Items == nil {
		page.Items = []model.Item{}
	}
	page.Page = req.Page
	page.Limit = req.Limit
	return page, nil
}

// FetchPage implements feed.Fetcher.
func (a *API) FetchPage(ctx context.Context, req pagination.PageRequest) (model.Page, error) {
	return a.Home(ctx, req)
}

// MyPosts lists every post owned by userID, published or not.
func (a *API) MyPosts(ctx context.Context, userID string) ([]model.Post, error) {
	var res postsResponse
	if err := a.call(ctx, http.MethodGet, "/myposts/"+url.PathEscape(userID), nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// GetPost fetches one post with its owner summary.
func (a *API) GetPost(ctx context.Context, id string) (model.Post, error) {
	var post model.Post
	err := a.call(ctx, http.MethodGet, "/post/"+url.PathEscape(id), nil, nil, &post)
	return post, err
}

// CreatePost creates a post owned by the caller.
func (a *API) CreatePost(ctx context.Context, in model.PostInput) (model.Post, error) {
	var post model.Post
	err := a.call(ctx, http.MethodPost, "/add-post", nil, in, &post)
	return post, err
}

// EditPost updates the non-nil fields of in.
func (a *API) EditPost(ctx context.Context, id string, in model.PostInput) (model.Post, error) {
	var post model.Post
	err := a.call(ctx, http.MethodPatch, "/post/"+url.PathEscape(id), nil, in, &post)
	return post, err
}

// DeletePost removes a post owned by the caller.
func (a *API) DeletePost(ctx context.Context, id string) error {
	return a.call(ctx, http.MethodDelete, "/post/"+url.PathEscape(id), nil, nil, nil)
}

// TogglePublish flips the published flag and returns the updated post.
func (a *API) TogglePublish(ctx context.Context, id string) (model.Post, error) {
	var post model.Post
	err := a.call(ctx, http.MethodPut, "/add-post/"+url.PathEscape(id)+"/publish", nil, nil, &post)
	return post, err
}

// CurrentUser returns the account behind the access token.
func (a *API) CurrentUser(ctx context.Context) (model.User, error) {
	var user model.User
	err := a.call(ctx, http.MethodGet, "/auth/current-user", nil, nil, &user)
	return user, err
}

func (a *API) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := a.client.NewRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	resp, err := a.doer.Do(req)
	if err != nil {
		return err
	}
	return DecodeResponse(resp, out)
}
