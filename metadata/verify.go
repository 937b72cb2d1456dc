package metadata

import (
	"crypto/rsa"
	"fmt"
	"io"
	"strings"
)

// VerifyOffline checks a record without touching the store: the signature
// under pub, the chunk count and the presence of each chunk digest. A
// missing digest fails under strict and is returned as a warning otherwise.
func VerifyOffline(r *FileRecord, pub *rsa.PublicKey, strict bool) ([]string, error) {
	if err := RequireSignature(r, pub); err != nil {
		return nil, err
	}
	if r.ChunkCount != len(r.Chunks) {
		return nil, fmt.Errorf("%w: chunk count %d, %d chunk entries", ErrInvalidRecord, r.ChunkCount, len(r.Chunks))
	}

	var warnings []string
	for _, c := range r.Chunks {
		if c.Hash != "" {
			continue
		}
		if strict {
			return nil, fmt.Errorf("%w: chunk %d has no digest", ErrInvalidRecord, c.Index)
		}
		warnings = append(warnings, fmt.Sprintf("chunk %d has no digest", c.Index))
	}
	return warnings, nil
}

// WriteSummary prints a human-readable listing of r to w.
func WriteSummary(w io.Writer, r *FileRecord) error {
	rule := strings.Repeat("=", 60)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nFILE INFORMATION\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Filename:    %s\n", r.Filename)
	fmt.Fprintf(&b, "Size:        %s bytes\n", groupThousands(r.OriginalSize))
	fmt.Fprintf(&b, "File SHA256: %s\n", r.FileHash)
	fmt.Fprintf(&b, "Version:     %s\n", r.Version)
	fmt.Fprintf(&b, "Chunks:      %d\n", r.ChunkCount)
	fmt.Fprintf(&b, "Signed:      %t\n", r.Signature != "")
	fmt.Fprintf(&b, "\nCHUNKS\n%s\n", strings.Repeat("-", 60))
	for _, c := range r.Chunks {
		where := "NOT UPLOADED"
		if c.Address != nil {
			where = c.Address.String()
		}
		hash := c.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Fprintf(&b, "[%03d] %6d bytes | %s... | %s\n", c.Index, c.Size, hash, where)
	}
	b.WriteString(rule)
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var out []byte
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
