package entity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// OwnershipPath addresses a page through its owners. Every lookup made on behalf
// of a caller is filtered by the full path.
type OwnershipPath struct {
	Organization string `json:"organization"`
	Collection   string `json:"collection"`
	Document     string `json:"document"`
	Page         int    `json:"page"`
}

func (p OwnershipPath) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", p.Organization, p.Collection, p.Document, p.Page)
}

// BlockRef addresses a single text block.
type BlockRef struct {
	OwnershipPath
	BlockID uuid.UUID `json:"block_id"`
}

// ParseOwnershipPath reads the "org/collection/document/page" form produced by String.
func ParseOwnershipPath(s string) (OwnershipPath, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != 4 {
		return OwnershipPath{}, fmt.Errorf("page path %q must look like org/collection/document/page", s)
	}
	for _, p := range parts[:3] {
		if p == "" {
			return OwnershipPath{}, fmt.Errorf("page path %q has an empty segment", s)
		}
	}
	n, err := strconv.Atoi(parts[3])
	if err != nil || n < 1 {
		return OwnershipPath{}, fmt.Errorf("page number %q must be a positive integer", parts[3])
	}
	return OwnershipPath{Organization: parts[0], Collection: parts[1], Document: parts[2], Page: n}, nil
}
