package alias

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

const DefaultEndpoint = "https://api.amboss.space/graphql"

// Directory looks up the public alias of a node.
type Directory interface {
	LookupAlias(ctx context.Context, pubkey string) (string, error)
}

// AmbossDirectory queries the Amboss GraphQL API.
type AmbossDirectory struct {
	Endpoint string
	Client   *http.Client
}

func NewAmbossDirectory(endpoint string, client *http.Client) *AmbossDirectory {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &AmbossDirectory{Endpoint: endpoint, Client: client}
}

type graphQLRequest struct {
	Query string `json:"query"`
}

const maxResponse = 1 << 20

var (
	errNoAlias = errors.New("response has no getNodeAlias")
	errNotJSON = errors.New("response is not JSON")
)

func (d *AmbossDirectory) LookupAlias(ctx context.Context, pubkey string) (string, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: fmt.Sprintf("query{getNodeAlias(pubkey:%q)}", pubkey),
	})
	if err != nil {
		return "", &LookupError{Pubkey: pubkey, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &LookupError{Pubkey: pubkey, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return "", &LookupError{Pubkey: pubkey, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &LookupError{Pubkey: pubkey, Status: resp.StatusCode, Err: fmt.Errorf("unexpected response: %q", snippet)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return "", &LookupError{Pubkey: pubkey, Status: resp.StatusCode, Err: err}
	}
	return parseAlias(pubkey, resp.StatusCode, raw)
}

// parseAlias pulls data.getNodeAlias out of a GraphQL reply. A null alias or
// a reply carrying only errors counts as a failed lookup.
func parseAlias(pubkey string, status int, raw []byte) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", &LookupError{Pubkey: pubkey, Status: status, Err: errNotJSON}
	}
	res := gjson.ParseBytes(raw)
	alias := res.Get("data.getNodeAlias")
	if alias.Type == gjson.String {
		return alias.Str, nil
	}
	if msg := res.Get("errors.0.message"); msg.Exists() {
		return "", &LookupError{Pubkey: pubkey, Status: status, Err: fmt.Errorf("%w: %s", errNoAlias, msg.String())}
	}
	return "", &LookupError{Pubkey: pubkey, Status: status, Err: errNoAlias}
}
