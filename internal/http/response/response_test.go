package response

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("job x: %w", pkgerrors.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: empty gap", pkgerrors.ErrInvalidArgument), http.StatusBadRequest},
		{pkgerrors.ErrTerminal, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("StatusFor(%v): want=%d got=%d", tc.err, tc.want, got)
		}
	}
}
