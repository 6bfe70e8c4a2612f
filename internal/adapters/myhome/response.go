package myhome

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"seoul-housing-ingest/internal/domain"
)

var serviceKeyPattern = regexp.MustCompile(`(?i)(serviceKey=)([^&\s"]+)`)

// MaskURL заменяет значение serviceKey на ****.
func MaskURL(s string) string {
	return serviceKeyPattern.ReplaceAllString(s, "${1}****")
}

type listResponse struct {
	Response struct {
		Header struct {
			ResultCode flexString `json:"resultCode"`
			ResultMsg  flexString `json:"resultMsg"`
		} `json:"header"`
		Body struct {
			TotalCount flexString      `json:"totalCount"`
			NumOfRows  flexString      `json:"numOfRows"`
			PageNo     flexString      `json:"pageNo"`
			Item       json.RawMessage `json:"item"`
			Items      json.RawMessage `json:"items"`
		} `json:"body"`
	} `json:"response"`
}

// flexString принимает строки, числа и null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	v, err := scalar(data)
	if err != nil {
		return err
	}
	*f = flexString(v)
	return nil
}

func scalar(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		return "", nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	case data[0] == '{' || data[0] == '[':
		return "", fmt.Errorf("expected scalar, got %c", data[0])
	default:
		return string(data), nil
	}
}

func decodePage(body []byte) (domain.ListingPage, error) {
	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ListingPage{}, fmt.Errorf("decode response: %w", err)
	}
	page := domain.ListingPage{
		ResultCode: string(resp.Response.Header.ResultCode),
		ResultMsg:  string(resp.Response.Header.ResultMsg),
		TotalCount: string(resp.Response.Body.TotalCount),
	}
	raw := resp.Response.Body.Item
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = resp.Response.Body.Items
	}
	items, err := decodeItems(raw)
	if err != nil {
		return domain.ListingPage{}, err
	}
	page.Items = items
	return page, nil
}

// decodeItems accepts a single object, an array, {"item": ...} or nothing.
func decodeItems(raw json.RawMessage) ([]domain.ListingItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`)) {
		return nil, nil
	}
	var objects []map[string]json.RawMessage
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &objects); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
	case '{':
		var one map[string]json.RawMessage
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		if nested, ok := one["item"]; ok && len(one) == 1 {
			return decodeItems(nested)
		}
		objects = []map[string]json.RawMessage{one}
	default:
		return nil, fmt.Errorf("decode items: unexpected %c", raw[0])
	}

	out := make([]domain.ListingItem, 0, len(objects))
	for i, obj := range objects {
		flat := make(map[string]string, len(obj))
		for k, v := range obj {
			s, err := scalar(v)
			if err != nil {
				continue
			}
			flat[k] = s
		}
		buf, err := json.Marshal(flat)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		var it domain.ListingItem
		if err := json.Unmarshal(buf, &it); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, it)
	}
	return out, nil
}
