package credentials

import (
	"encoding/json"
	"sync"
	"time"

	"streamkey-relay/work/errs"
	"streamkey-relay/work/jsonfile"
	"streamkey-relay/work/logger"
)

// SlotCount is the fixed number of credential records the store holds.
const SlotCount = 5

// TimeFormat is the ISO-8601 layout used for lastUpdated stamps.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

var log = logger.New("credentials")

// Credential is one named bearer token for the streaming platform.
type Credential struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Token       string `json:"token"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// UnmarshalJSON rejects records whose enabled flag is missing. A non-boolean
// enabled fails with the decoder's own type error.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Token       string `json:"token"`
		Description string `json:"description"`
		Enabled     *bool  `json:"enabled"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Enabled == nil {
		return errs.InvalidInput("Invalid token structure")
	}

	*c = Credential{
		ID:          raw.ID,
		Name:        raw.Name,
		Token:       raw.Token,
		Description: raw.Description,
		Enabled:     *raw.Enabled,
	}
	return nil
}

// Usable reports whether the record can be used to start a stream.
func (c Credential) Usable() bool {
	return c.Enabled && c.Token != ""
}

// File is the on-disk layout of the store.
type File struct {
	Tokens      []Credential `json:"tokens"`
	LastUpdated string       `json:"lastUpdated"`
}

// Find returns the record with the given id.
func (f *File) Find(id string) (Credential, bool) {
	for _, c := range f.Tokens {
		if c.ID == id {
			return c, true
		}
	}
	return Credential{}, false
}

// Defaults returns the placeholder records written on first run.
func Defaults() []Credential {
	return []Credential{
		{ID: "token1", Name: "Account 1 - Main", Description: "Primary streaming account", Enabled: true},
		{ID: "token2", Name: "Account 2 - Backup", Description: "Backup streaming account", Enabled: true},
		{ID: "token3", Name: "Account 3 - Gaming", Description: "Gaming content account", Enabled: true},
		{ID: "token4", Name: "Account 4 - Music", Description: "Music streaming account", Enabled: true},
		{ID: "token5", Name: "Account 5 - Test", Description: "Testing account", Enabled: true},
	}
}

// Validate enforces the store's write invariants.
func Validate(records []Credential) error {
	if len(records) != SlotCount {
		return errs.InvalidInput("Invalid tokens configuration - must have exactly %d tokens", SlotCount)
	}
	for _, r := range records {
		if r.ID == "" || r.Name == "" {
			return errs.InvalidInput("Invalid token structure")
		}
	}
	return nil
}

// Store persists the credential records in a single JSON file.
type Store struct {
	path string
	now  func() time.Time

	// mu serializes saves inside this process only.
	mu sync.Mutex
}

// NewStore returns a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{
		path: path,
		now:  time.Now,
	}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Init writes the default records when the backing file does not exist.
func (s *Store) Init() error {
	created, err := jsonfile.EnsureFile(s.path, &File{
		Tokens:      Defaults(),
		LastUpdated: s.stamp(),
	})
	if err != nil {
		return errs.Wrapf(err, "initialize credential store")
	}
	if created {
		log.Info("{credentials - Init} created default bearer tokens file: %s", s.path)
	}
	return nil
}

// ReadAll returns every record with the last update stamp.
func (s *Store) ReadAll() (*File, error) {
	var f File
	if err := jsonfile.Read(s.path, &f); err != nil {
		log.Error("{credentials - ReadAll} failed to read bearer tokens: %v", err)
		return nil, errs.StoreUnavailable(err, "Failed to read bearer tokens configuration")
	}
	if f.Tokens == nil {
		f.Tokens = []Credential{}
	}
	return &f, nil
}

// WriteAll replaces the full record set. Invalid input leaves the file untouched.
func (s *Store) WriteAll(records []Credential) (string, error) {
	if err := Validate(records); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f := &File{
		Tokens:      records,
		LastUpdated: s.stamp(),
	}
	if err := jsonfile.Write(s.path, f); err != nil {
		log.Error("{credentials - WriteAll} failed to write bearer tokens: %v", err)
		return "", errs.StoreUnavailable(err, "Failed to save bearer tokens configuration")
	}

	log.Info("{credentials - WriteAll} bearer tokens configuration saved")
	return f.LastUpdated, nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(TimeFormat)
}
