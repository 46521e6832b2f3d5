// Package mediawiki 是流水线 stage 的默认实现：所有领域操作都落在
// MediaWiki Action API 上。每次外呼有固定超时，整条流水线没有
// wall-clock 上限——慢任务靠取消检查点收敛，不靠超时。
package mediawiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client MediaWiki Action API 客户端
type Client struct {
	apiBase string
	http    *http.Client
	timeout time.Duration
}

func NewClient(apiBase string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiBase: apiBase,
		http:    &http.Client{},
		timeout: timeout,
	}
}

// apiGet 执行一次带固定超时的 GET，JSON 结果解到 dest
func (c *Client) apiGet(ctx context.Context, params url.Values, dest interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mediawiki: unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// apiPost 执行一次带固定超时的表单 POST
func (c *Client) apiPost(ctx context.Context, params url.Values, dest interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mediawiki: unexpected status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// PageText 取页面最新版本的 wikitext；页面不存在时返回空串
func (c *Client) PageText(ctx context.Context, title string) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "revisions")
	params.Set("rvprop", "content")
	params.Set("rvslots", "main")
	params.Set("titles", title)

	var out struct {
		Query struct {
			Pages map[string]struct {
				Missing   *string `json:"missing"`
				Revisions []struct {
					Slots struct {
						Main struct {
							Content string `json:"*"`
						} `json:"main"`
					} `json:"slots"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.apiGet(ctx, params, &out); err != nil {
		return "", err
	}
	for _, p := range out.Query.Pages {
		if p.Missing != nil || len(p.Revisions) == 0 {
			return "", nil
		}
		return p.Revisions[0].Slots.Main.Content, nil
	}
	return "", nil
}

// csrfToken 取编辑用 CSRF token
func (c *Client) csrfToken(ctx context.Context) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("meta", "tokens")
	params.Set("type", "csrf")

	var out struct {
		Query struct {
			Tokens struct {
				CSRFToken string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	if err := c.apiGet(ctx, params, &out); err != nil {
		return "", err
	}
	if out.Query.Tokens.CSRFToken == "" {
		return "", fmt.Errorf("mediawiki: empty csrf token")
	}
	return out.Query.Tokens.CSRFToken, nil
}

// SavePage 写回页面全文
func (c *Client) SavePage(ctx context.Context, title, text, summary string) error {
	token, err := c.csrfToken(ctx)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("action", "edit")
	params.Set("title", title)
	params.Set("text", text)
	params.Set("summary", summary)
	params.Set("token", token)

	var out struct {
		Edit struct {
			Result string `json:"result"`
		} `json:"edit"`
		Error *struct {
			Code string `json:"code"`
			Info string `json:"info"`
		} `json:"error"`
	}
	if err := c.apiPost(ctx, params, &out); err != nil {
		return err
	}
	if out.Error != nil {
		return fmt.Errorf("mediawiki: edit failed: %s (%s)", out.Error.Info, out.Error.Code)
	}
	if out.Edit.Result != "Success" {
		return fmt.Errorf("mediawiki: edit result %q", out.Edit.Result)
	}
	return nil
}
