package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type identifierRepo struct{ s *Store }

// Lock is a no-op: the store already serializes transactions.
func (r *identifierRepo) Lock(ctx context.Context, kind string) error {
	return ctx.Err()
}

func (r *identifierRepo) Last(ctx context.Context, kind, prefix string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids, err := r.ids(kind)
	if err != nil {
		return "", err
	}

	var matching []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			matching = append(matching, id)
		}
	}
	if len(matching) == 0 {
		return "", nil
	}
	// same ordering as the SQL query: longest first, then lexicographic
	sort.Slice(matching, func(i, j int) bool {
		if len(matching[i]) != len(matching[j]) {
			return len(matching[i]) > len(matching[j])
		}
		return matching[i] > matching[j]
	})
	return matching[0], nil
}

func (r *identifierRepo) MaxSequence(ctx context.Context, kind string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids, err := r.ids(kind)
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, id := range ids {
		i := strings.LastIndexAny(id, "-/")
		if n, err := strconv.Atoi(id[i+1:]); err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (r *identifierRepo) ids(kind string) ([]string, error) {
	st := r.s.st
	var ids []string
	switch kind {
	case "patient":
		for _, p := range st.patients {
			ids = append(ids, p.PatientID)
		}
	case "doctor":
		for _, d := range st.doctors {
			ids = append(ids, d.DoctorID)
		}
	case "visit":
		for _, v := range st.visits {
			ids = append(ids, v.VisitID)
		}
	case "receipt":
		for _, rc := range st.receipts {
			ids = append(ids, rc.ReceiptNumber)
		}
	default:
		return nil, fmt.Errorf("unknown identifier kind %q", kind)
	}
	return ids, nil
}
