package config

import (
	"strconv"
	"strings"
)

func parseIDs(raw []string) ([]int64, error) {
	var ids []int64
	for _, chunk := range raw {
		for _, s := range strings.Split(chunk, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
