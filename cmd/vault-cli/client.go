package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"stakevault/rpc"
)

type client struct {
	base  string
	token string
	http  *http.Client
}

func bindClientFlags(fs *flag.FlagSet) func() *client {
	endpoint := fs.String("rpc", "", "API endpoint (default $"+rpcURLEnv+" or "+defaultRPCURL+")")
	token := fs.String("token", "", "bearer token (default $"+tokenEnv+")")
	return func() *client {
		base := strings.TrimSpace(*endpoint)
		if base == "" {
			base = strings.TrimSpace(os.Getenv(rpcURLEnv))
		}
		if base == "" {
			base = defaultRPCURL
		}
		tok := strings.TrimSpace(*token)
		if tok == "" {
			tok = strings.TrimSpace(os.Getenv(tokenEnv))
		}
		return &client{base: strings.TrimRight(base, "/"), token: tok, http: &http.Client{Timeout: 30 * time.Second}}
	}
}

func (c *client) do(method, path string, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var envelope rpc.ErrorBody
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
			return raw, fmt.Errorf("%s (%s, HTTP %d)", envelope.Error.Message, envelope.Error.Code, resp.StatusCode)
		}
		var receipt struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &receipt) == nil && receipt.Error != "" {
			return raw, fmt.Errorf("%s (%s, HTTP %d)", receipt.Error, receipt.Code, resp.StatusCode)
		}
		return raw, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func printJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, werr := w.Write(raw)
		return werr
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

func runTx(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("tx", flag.ContinueOnError)
	newClient := bindClientFlags(fs)
	key := fs.String("idempotency-key", "", "retry key; a random one is used when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 1 {
		return errors.New("usage: tx <instruction> [json|@file]")
	}
	payload, err := readPayload(rest[1:])
	if err != nil {
		return err
	}
	idem := strings.TrimSpace(*key)
	if idem == "" {
		idem = uuid.NewString()
	}
	c := newClient()
	raw, err := c.do(http.MethodPost, "/v1/tx/"+url.PathEscape(rest[0]), payload, map[string]string{rpc.IdempotencyHeader: idem})
	if raw != nil {
		_ = printJSON(stdout, raw)
	}
	return err
}

func readPayload(args []string) ([]byte, error) {
	if len(args) == 0 {
		return []byte("{}"), nil
	}
	arg := strings.TrimSpace(args[0])
	var raw []byte
	if strings.HasPrefix(arg, "@") {
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, err
		}
		raw = data
	} else {
		raw = []byte(arg)
	}
	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid JSON")
	}
	return raw, nil
}

func runQuery(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	newClient := bindClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 1 {
		return errors.New("usage: query <name> [key=value ...]")
	}
	values := url.Values{}
	for _, pair := range rest[1:] {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return fmt.Errorf("query parameter %q must be key=value", pair)
		}
		values.Set(k, v)
	}
	path := "/v1/query/" + url.PathEscape(rest[0])
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	raw, err := newClient().do(http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runReceipts(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("receipts", flag.ContinueOnError)
	newClient := bindClientFlags(fs)
	sender := fs.String("sender", "", "filter by sender")
	instruction := fs.String("instruction", "", "filter by instruction")
	failed := fs.Bool("failed", false, "only rejected instructions")
	limit := fs.Int("limit", 20, "maximum receipts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	values := url.Values{}
	if *sender != "" {
		values.Set("sender", *sender)
	}
	if *instruction != "" {
		values.Set("instruction", *instruction)
	}
	if *failed {
		values.Set("failed", "true")
	}
	values.Set("limit", fmt.Sprint(*limit))
	raw, err := newClient().do(http.MethodGet, "/v1/receipts?"+values.Encode(), nil, nil)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runExport(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	newClient := bindClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := newClient().do(http.MethodPost, "/v1/admin/export", nil, nil)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}
