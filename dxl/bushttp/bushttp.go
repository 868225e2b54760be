// Package bushttp forwards bus transactions to a remote bus_server.
package bushttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ResponsesHeader carries the number of status packets the server should
// collect for the posted instruction packet.
const ResponsesHeader = "X-Responses"

type TransactResponse struct {
	Responses [][]byte
	Error     string
}

// Client implements dxl.Conn by posting each transaction to baseURL.
type Client struct {
	baseURL  string
	password string
	client   *http.Client
}

func NewClient(baseURL, password string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) Transact(req []byte, responses int) ([][]byte, error) {
	hreq, err := http.NewRequest(http.MethodPost, c.baseURL, bytes.NewReader(req))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/octet-stream")
	hreq.Header.Set(ResponsesHeader, strconv.Itoa(responses))
	if c.password != "" {
		hreq.SetBasicAuth("", c.password)
	}
	resp, err := c.client.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status code: %s\n%s", resp.Status, string(body))
	}
	var tr TransactResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, err
	}
	if tr.Error != "" {
		err = errors.New(tr.Error)
	}
	return tr.Responses, err
}
