package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
	"github.com/njprem/ExcelChat_BackEnd/internal/util"
)

var ErrWizardNotFound = errors.New("wizard not found")

// WizardRegistry keeps the open upload wizards. Idle wizards expire after
// the TTL and are closed when they leave the registry for any reason.
type WizardRegistry struct {
	gateway   wizardGateway
	storage   ports.ObjectStorage
	scheduler util.Scheduler
	base      WizardConfig
	cache     *expirable.LRU[string, *UploadWizard]

	// onComplete receives every file confirmed by a wizard.
	onComplete func(ownerID string, file domain.UploadedFile)
}

func NewWizardRegistry(
	gateway wizardGateway,
	storage ports.ObjectStorage,
	scheduler util.Scheduler,
	base WizardConfig,
	size int,
	ttl time.Duration,
	onComplete func(ownerID string, file domain.UploadedFile),
) *WizardRegistry {
	return &WizardRegistry{
		gateway:    gateway,
		storage:    storage,
		scheduler:  scheduler,
		base:       base,
		onComplete: onComplete,
		cache: expirable.NewLRU[string, *UploadWizard](size, func(id string, w *UploadWizard) {
			w.Close()
		}, ttl),
	}
}

func (r *WizardRegistry) Create(ownerID string) *UploadWizard {
	cfg := r.base
	cfg.ID = uuid.NewString()
	cfg.OwnerID = ownerID
	if r.onComplete != nil {
		cfg.OnComplete = func(file domain.UploadedFile) { r.onComplete(ownerID, file) }
	}
	w := NewUploadWizard(r.gateway, r.storage, r.scheduler, cfg)
	if r.cache.Add(cfg.ID, w) {
		log.Printf("wizard registry full, evicted oldest wizard")
	}
	return w
}

// Get returns the owner's wizard and restarts its idle timer.
func (r *WizardRegistry) Get(ownerID, id string) (*UploadWizard, error) {
	w, ok := r.cache.Get(id)
	if !ok || w.OwnerID() != ownerID {
		return nil, ErrWizardNotFound
	}
	r.cache.Add(id, w)
	return w, nil
}

// Remove closes and forgets the wizard.
func (r *WizardRegistry) Remove(ownerID, id string) error {
	if _, err := r.Get(ownerID, id); err != nil {
		return err
	}
	r.cache.Remove(id)
	return nil
}

func (r *WizardRegistry) Len() int {
	return r.cache.Len()
}

// Close closes every wizard.
func (r *WizardRegistry) Close() {
	r.cache.Purge()
}

// ManagerRegistry holds one FileManager per user. A manager is mounted (files
// and jobs loaded, active jobs resumed) when first requested and closed when
// it has been idle for the TTL.
type ManagerRegistry struct {
	gateway   managerGateway
	scheduler util.Scheduler
	base      FileManagerConfig

	mu    sync.Mutex
	cache *expirable.LRU[string, *mountedManager]
}

// mountedManager lets concurrent first requests for one user share a single
// mount and all wait for it.
type mountedManager struct {
	*FileManager
	mount sync.Once
}

const mountTimeout = 30 * time.Second

func NewManagerRegistry(gateway managerGateway, scheduler util.Scheduler, base FileManagerConfig, size int, ttl time.Duration) *ManagerRegistry {
	return &ManagerRegistry{
		gateway:   gateway,
		scheduler: scheduler,
		base:      base,
		cache: expirable.NewLRU[string, *mountedManager](size, func(owner string, m *mountedManager) {
			m.Close()
		}, ttl),
	}
}

// Get returns the user's manager, creating and mounting it if needed. Callers
// arriving while the mount runs wait for it. Load failures do not fail the
// call; they are reported through the manager's Error.
func (r *ManagerRegistry) Get(ctx context.Context, ownerID string) *FileManager {
	r.mu.Lock()
	entry, ok := r.cache.Get(ownerID)
	if ok {
		r.cache.Add(ownerID, entry)
	} else {
		cfg := r.base
		cfg.OwnerID = ownerID
		entry = &mountedManager{FileManager: NewFileManager(r.gateway, r.scheduler, cfg)}
		r.cache.Add(ownerID, entry)
	}
	r.mu.Unlock()

	entry.mount.Do(func() {
		// shared by every waiting caller, so detached from the first request
		mountCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mountTimeout)
		defer cancel()
		if err := entry.LoadFiles(mountCtx); err != nil {
			log.Printf("file manager %s: %v", ownerID, err)
		}
		if err := entry.LoadJobs(mountCtx); err != nil {
			log.Printf("file manager %s: %v", ownerID, err)
		}
	})
	return entry.FileManager
}

// AddFile hands a confirmed file to the user's manager if one is mounted. An
// unmounted manager lists it on its first load anyway.
func (r *ManagerRegistry) AddFile(ownerID string, file domain.UploadedFile) {
	r.mu.Lock()
	entry, ok := r.cache.Peek(ownerID)
	r.mu.Unlock()
	if ok {
		entry.AddFile(file)
	}
}

func (r *ManagerRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Purge()
}
