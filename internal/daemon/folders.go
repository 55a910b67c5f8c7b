package daemon

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FolderStatus represents the scan state of a tracked folder.
type FolderStatus string

const (
	FolderScanning FolderStatus = "scanning"
	FolderScanned  FolderStatus = "scanned"
	FolderError    FolderStatus = "error"
)

// Folder is one directory tracked for video discovery.
type Folder struct {
	ID           string       `json:"id"`
	Path         string       `json:"path"`
	Recursive    bool         `json:"recursive"`
	Status       FolderStatus `json:"status"`
	VideosFound  int          `json:"videos_found"`
	RegisteredAt time.Time    `json:"registered_at"`
	Error        string       `json:"error,omitempty"`
}

// FolderRegistry provides thread-safe in-memory storage for tracked
// folders, deduplicated by path.
type FolderRegistry struct {
	mu      sync.RWMutex
	folders map[string]*Folder
	byPath  map[string]string
}

// NewFolderRegistry creates a new folder registry.
func NewFolderRegistry() *FolderRegistry {
	return &FolderRegistry{
		folders: make(map[string]*Folder),
		byPath:  make(map[string]string),
	}
}

// Add tracks a folder. If the path is already tracked, the existing
// entry is returned and added reports false.
func (r *FolderRegistry) Add(f *Folder) (Folder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byPath[f.Path]; ok {
		return *r.folders[id], false
	}
	r.folders[f.ID] = f
	r.byPath[f.Path] = f.ID
	return *f, true
}

// Get retrieves a folder by ID.
func (r *FolderRegistry) Get(id string) (Folder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.folders[id]
	if !ok {
		return Folder{}, false
	}
	return *f, true
}

// List returns all tracked folders sorted by RegisteredAt descending.
func (r *FolderRegistry) List() []Folder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	folders := make([]Folder, 0, len(r.folders))
	for _, f := range r.folders {
		folders = append(folders, *f)
	}
	sort.Slice(folders, func(i, j int) bool {
		return folders[i].RegisteredAt.After(folders[j].RegisteredAt)
	})
	return folders
}

// Update performs a thread-safe update on a tracked folder.
func (r *FolderRegistry) Update(id string, fn func(*Folder)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.folders[id]; ok {
		fn(f)
	}
}

// handleFolders handles GET /folders (listing) and POST /folders
// (track a directory and scan it for video files).
func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondJSON(w, http.StatusOK, map[string]interface{}{"folders": s.folders.List()})

	case http.MethodPost:
		var req struct {
			Path      string `json:"path"`
			Recursive bool   `json:"recursive"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			respondError(w, http.StatusBadRequest, fmt.Errorf("path is required"))
			return
		}
		info, err := os.Stat(req.Path)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Errorf("folder path: %w", err))
			return
		}
		if !info.IsDir() {
			respondError(w, http.StatusBadRequest, fmt.Errorf("%s is not a directory", req.Path))
			return
		}

		folder, added := s.folders.Add(&Folder{
			ID:           uuid.NewString(),
			Path:         req.Path,
			Recursive:    req.Recursive,
			Status:       FolderScanning,
			RegisteredAt: time.Now().UTC(),
		})
		if !added {
			respondJSON(w, http.StatusOK, map[string]string{
				"folder_id": folder.ID,
				"status":    "already_exists",
			})
			return
		}

		go s.scanFolder(folder.ID, folder.Path, folder.Recursive)

		respondJSON(w, http.StatusAccepted, map[string]string{
			"folder_id": folder.ID,
			"status":    string(FolderScanning),
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// scanFolder walks a tracked folder and registers every video file not
// already in the registry. Discovered videos start pending; indexing
// runs later through the job API.
func (s *Server) scanFolder(folderID, root string, recursive bool) {
	paths, err := collectVideoFiles(root, recursive)
	if err != nil {
		slog.Error("folder scan failed", "folder_id", folderID, "path", root, "error", err)
		s.folders.Update(folderID, func(f *Folder) {
			f.Status = FolderError
			f.Error = err.Error()
		})
		return
	}

	rate := s.settings.View().FrameRate
	found := 0
	for _, p := range paths {
		if _, exists := s.registry.FindByPath(p); exists {
			continue
		}
		video := &Video{
			ID:           uuid.NewString(),
			Path:         p,
			Status:       StatusPending,
			SamplingRate: rate,
			RegisteredAt: time.Now().UTC(),
		}
		s.registry.Add(video)
		found++
		slog.Info("video discovered", "folder_id", folderID, "video_id", video.ID, "path", p)
	}

	s.folders.Update(folderID, func(f *Folder) {
		f.Status = FolderScanned
		f.VideosFound = found
	})

	if s.hub != nil {
		s.hub.Broadcast(&Event{
			Type:      "folder.scanned",
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"folder_id": folderID, "videos_found": found},
		})
	}
}

// collectVideoFiles lists video files under root, walking subdirectories
// when recursive is set.
func collectVideoFiles(root string, recursive bool) ([]string, error) {
	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		var paths []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if videoExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				paths = append(paths, filepath.Join(root, e.Name()))
			}
		}
		return paths, nil
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if videoExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}
