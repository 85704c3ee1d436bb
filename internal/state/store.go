package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"InternAgent/internal/model"
)

// backupEvery controls how often Save refreshes the .bak sibling:
// every Nth successful save.
const backupEvery = 10

// Error kinds for the raw read path. Recovery logic branches on these
// instead of string-matching messages.
var (
	ErrNotFound = errors.New("state file not found")
	ErrCorrupt  = errors.New("state file corrupt")
)

// Store persists the agent state document as a JSON file with a .bak
// sibling. It holds no mutable state besides the save counter; the
// document itself flows through the call chain as a value.
type Store struct {
	path       string
	backupPath string
	saveCount  int
}

// NewStore prepares the data directory for the state file. A failure
// to create the directory is returned to the caller and is fatal:
// nothing can proceed without persistence.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{path: path, backupPath: path + ".bak"}, nil
}

// Load reads, migrates, and normalizes the state document. It is
// total: a missing, empty, or corrupt file falls back to the backup
// file, and failing that to the documented defaults (which are
// persisted immediately). Day-keyed counters are recomputed against
// now on every load.
func (s *Store) Load(now time.Time) *model.AgentState {
	doc, err := readRaw(s.path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("[INFO] no state file at %s, starting fresh", s.path)
		} else {
			log.Printf("[WARN] read state: %v, trying backup", err)
			if bak, bakErr := readRaw(s.backupPath); bakErr == nil {
				log.Printf("[INFO] recovered state from backup %s", s.backupPath)
				doc = bak
			}
		}
	}

	if doc == nil {
		st := model.NewDefaultState(now)
		if saveErr := s.Save(st, now); saveErr != nil {
			log.Printf("[ERROR] persist default state: %v", saveErr)
		}
		return st
	}

	st := decode(migrate(doc))
	return rollDayCounters(st, now)
}

// Save stamps the current schema version, serializes the document, and
// atomically renames a temp file over the target path so the visible
// file is never partially written. The stamps go onto a private copy;
// the caller's document is never modified. Every Nth save refreshes
// the .bak sibling; backup failure never fails the save.
func (s *Store) Save(st *model.AgentState, now time.Time) error {
	st = st.Clone()
	st.SchemaVersion = model.SchemaVersion
	st.UpdatedAt = now

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".agent_state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename state file: %w", err)
	}

	s.saveCount++
	if s.saveCount%backupEvery == 0 {
		if err := os.WriteFile(s.backupPath, data, 0o644); err != nil {
			log.Printf("[WARN] refresh state backup: %v", err)
		}
	}
	return nil
}

// readRaw reads and parses the file at path into a raw document,
// distinguishing not-found, parse, and other (e.g. permission) errors.
func readRaw(path string) (rawDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorrupt, path)
	}
	var doc rawDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s holds null", ErrCorrupt, path)
	}
	return doc, nil
}

// decode converts a migrated, normalized raw document into the typed
// state struct. Unknown fields are dropped; missing fields keep their
// zero value, which migrate has already filled in.
func decode(doc rawDoc) *model.AgentState {
	data, err := json.Marshal(doc)
	if err != nil {
		// A rawDoc always marshals; defensive default keeps Load total.
		log.Printf("[ERROR] re-marshal migrated state: %v", err)
		return model.NewDefaultState(time.Now())
	}
	var st model.AgentState
	if err := json.Unmarshal(data, &st); err != nil {
		log.Printf("[ERROR] decode migrated state: %v", err)
		return model.NewDefaultState(time.Now())
	}
	if st.Breakers == nil {
		st.Breakers = map[string]model.BreakerState{}
	}
	if st.LastActionAtMs == nil {
		st.LastActionAtMs = map[string]int64{}
	}
	if st.SeenNewsFingerprints == nil {
		st.SeenNewsFingerprints = []string{}
	}
	if st.RepliedCommentIDs == nil {
		st.RepliedCommentIDs = []string{}
	}
	return &st
}

// rollDayCounters resets every counter whose stored day key does not
// match the current UTC day. This runs on every load, not only after
// migration, so a long-running file picks up day boundaries too.
func rollDayCounters(st *model.AgentState, now time.Time) *model.AgentState {
	day := model.DayKey(now)
	out := st.Clone()
	for _, c := range []*model.DayCounter{&out.Trades, &out.NewsPosts, &out.DiscussionPosts, &out.CampaignPosts} {
		if c.DayKeyUTC != day {
			c.DayKeyUTC = day
			c.Count = 0
		}
	}
	return out
}
