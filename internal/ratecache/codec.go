package ratecache

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"cryptofmv/logger"
	"cryptofmv/models"
)

// Rate files are flat YAML mappings keyed by YYYY-MM-DD, written with
// sorted unquoted keys.

func decodeMapping(data []byte) (map[string]string, error) {
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func encodeMapping(entries map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Value: entries[k]},
		)
	}
	return yaml.Marshal(doc)
}

func decodeRates(data []byte, log *logger.Entry) (map[models.Date]decimal.Decimal, error) {
	raw, err := decodeMapping(data)
	if err != nil {
		return nil, err
	}
	rates := make(map[models.Date]decimal.Decimal, len(raw))
	for k, v := range raw {
		d, err := models.ParseDate(k)
		if err != nil {
			log.WithFields(logger.Fields{"key": k}).Warn("ignoring malformed date key")
			continue
		}
		p, err := decimal.NewFromString(v)
		if err != nil {
			log.WithFields(logger.Fields{"date": k, "value": v}).Warn("ignoring malformed rate")
			continue
		}
		rates[d] = p
	}
	return rates, nil
}

func decodeMissing(data []byte, log *logger.Entry) (map[models.Date]string, error) {
	raw, err := decodeMapping(data)
	if err != nil {
		return nil, err
	}
	missing := make(map[models.Date]string, len(raw))
	for k, v := range raw {
		d, err := models.ParseDate(k)
		if err != nil {
			log.WithFields(logger.Fields{"key": k}).Warn("ignoring malformed date key")
			continue
		}
		if v == "" {
			v = MissingMarker
		}
		missing[d] = v
	}
	return missing, nil
}

func encodeRates(rates map[models.Date]decimal.Decimal) ([]byte, error) {
	entries := make(map[string]string, len(rates))
	for d, p := range rates {
		entries[d.String()] = p.String()
	}
	data, err := encodeMapping(entries)
	if err != nil {
		return nil, fmt.Errorf("encode rates: %w", err)
	}
	return data, nil
}

func encodeMissing(missing map[models.Date]string) ([]byte, error) {
	entries := make(map[string]string, len(missing))
	for d, v := range missing {
		entries[d.String()] = v
	}
	data, err := encodeMapping(entries)
	if err != nil {
		return nil, fmt.Errorf("encode missing dates: %w", err)
	}
	return data, nil
}
