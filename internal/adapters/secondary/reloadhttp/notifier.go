// Package reloadhttp notifies running inference services over HTTP so they
// re-read the promoted model without a restart.
package reloadhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"churn-model-service/internal/auth"
	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/ports/output"
)

const ReloadPath = "/admin/reload"

type notifier struct {
	urls   []string
	signer *auth.Signer
	client *http.Client
}

// NewNotifier posts to <url>/admin/reload on every base URL, signing each
// request with a fresh token from signer.
func NewNotifier(urls []string, signer *auth.Signer, timeout time.Duration) ports.ReloadNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &notifier{
		urls:   urls,
		signer: signer,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *notifier) Notify(ctx context.Context, entry *domain.RegistryEntry) error {
	token, err := n.signer.Issue(auth.SubjectReload)
	if err != nil {
		return err
	}

	errs := make([]error, len(n.urls))
	var g errgroup.Group
	for i, base := range n.urls {
		g.Go(func() error {
			errs[i] = n.post(ctx, strings.TrimRight(base, "/")+ReloadPath, token)
			if errs[i] == nil {
				log.WithFields(log.Fields{"url": base, "entry": entry.Name}).Info("Inference service reloaded")
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (n *notifier) post(ctx context.Context, url, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build reload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("reload %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("reload %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
