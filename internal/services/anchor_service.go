package services

import (
	"context"

	"github.com/google/logger"

	"lottery/internal/contentstore"
	"lottery/internal/faults"
	"lottery/internal/ledger"
	"lottery/internal/models"
	"lottery/internal/readmodel"
	"lottery/internal/session"
)

const maxKindLength = 64

// AnchorService uploads files to the content store and links their identifiers to
// the caller's identity on the ledger. Upload and link are separate steps: when
// linking fails the uploaded identifier is returned inside the error.
type AnchorService struct {
	ledger *ledger.Client
	store  contentstore.Store
	cache  *readmodel.Cache
	guard  *writeGuard
	mount  bool
}

// NewAnchorService creates an AnchorService. With mount set, uploads are also
// copied into the store's file tree, best effort.
func NewAnchorService(lc *ledger.Client, store contentstore.Store, cache *readmodel.Cache, mount bool) *AnchorService {
	return &AnchorService{
		ledger: lc,
		store:  store,
		cache:  cache,
		guard:  newWriteGuard(lc),
		mount:  mount,
	}
}

func validKind(op string, kind models.AnchorKind) error {
	if kind == "" || len(kind) > maxKindLength {
		return faults.Validation(op, "invalid anchor kind %q", kind)
	}
	return nil
}

// AnchorFile uploads data and links it as the caller's anchor of the given kind.
func (s *AnchorService) AnchorFile(ctx context.Context, sess *session.Session, kind models.AnchorKind, data []byte) (models.ContentID, error) {
	const op = "anchor file"
	if err := validKind(op, kind); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", faults.Validation(op, "file is empty")
	}
	who, err := sess.Ready(ctx)
	if err != nil {
		return "", err
	}
	release, err := s.guard.acquire(ctx, op, who, anchorTarget(kind))
	if err != nil {
		return "", err
	}
	defer release()

	id, err := s.store.Put(ctx, data)
	if err != nil {
		return "", err
	}
	if s.mount {
		if err := s.store.Mount(ctx, id, "/"+string(id)); err != nil {
			logger.Warningf("anchor: mount %s: %v", id, err)
		}
	}

	if err := s.link(ctx, op, who, kind, id); err != nil {
		return id, err
	}
	return id, nil
}

// LinkAnchor links an already uploaded identifier without uploading again.
func (s *AnchorService) LinkAnchor(ctx context.Context, sess *session.Session, kind models.AnchorKind, id models.ContentID) error {
	const op = "link anchor"
	if err := validKind(op, kind); err != nil {
		return err
	}
	if err := id.Validate(); err != nil {
		return faults.Wrap(faults.KindValidation, op, err)
	}
	who, err := sess.Ready(ctx)
	if err != nil {
		return err
	}
	release, err := s.guard.acquire(ctx, op, who, anchorTarget(kind))
	if err != nil {
		return err
	}
	defer release()

	return s.link(ctx, op, who, kind, id)
}

func (s *AnchorService) link(ctx context.Context, op string, who models.Identity, kind models.AnchorKind, id models.ContentID) error {
	_, err := s.ledger.Execute(ctx, ledger.Request{From: who, Call: ledger.SetAnchor{Kind: kind, ID: id}})
	if err != nil {
		s.guard.track(who, anchorTarget(kind), err)
		fe := &faults.Error{Kind: faults.KindOf(err), Op: op, Reason: faults.ErrLinkFailed, ContentID: id, Err: err}
		if inner, ok := faults.As(err); ok {
			fe.Handle = inner.Handle
		}
		logger.Warningf("anchor: %s uploaded %s but link failed: %v", who.Hex(), id, err)
		return fe
	}

	logger.Infof("anchor: %s %s -> %s", who.Hex(), kind, id)
	if _, err := s.cache.RefreshAnchor(ctx, who, kind); err != nil {
		logger.Warningf("anchor: link confirmed but refresh failed: %v", err)
	}
	return nil
}

// ReadCurrentAnchor returns the anchor of who for kind. The ledger's empty/zero
// sentinel reads as no anchor.
func (s *AnchorService) ReadCurrentAnchor(ctx context.Context, who models.Identity, kind models.AnchorKind) (models.ContentID, bool, error) {
	if err := validKind("read anchor", kind); err != nil {
		return "", false, err
	}
	id, err := s.cache.RefreshAnchor(ctx, who, kind)
	if err != nil {
		return "", false, err
	}
	return id, !id.IsZero(), nil
}
