package schema

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/gorm"
)

const (
	LifecycleStandard  = "standard"
	LifecycleCancelled = "cancelled"
	LifecycleEcr       = "ecr"
)

// Well-known rows created by the initial migration.
const (
	CancelledLifecycleName = "cancelled"
	CancelledStateName     = "cancelled"
)

type State struct {
	Name string `gorm:"primaryKey;size:50"`
}

// Lifecycle is an ordered list of states plus a designated official state.
// Lifecycles are treated as immutable once created, which is what makes the
// state list cache below safe.
type Lifecycle struct {
	Name string `gorm:"primaryKey;size:50"`
	Type string `gorm:"size:20;not null;default:'standard'"`

	OfficialStateName string `gorm:"size:50;not null"`
	OfficialState     *State `gorm:"foreignKey:OfficialStateName"`

	States []LifecycleState `gorm:"foreignKey:LifecycleName;constraint:OnDelete:CASCADE"`
}

// LifecycleState assigns a rank to a state within a lifecycle. The same State
// row may appear at different ranks in different lifecycles.
type LifecycleState struct {
	LifecycleName string `gorm:"primaryKey;size:50"`
	StateName     string `gorm:"primaryKey;size:50"`
	Rank          int    `gorm:"not null"`

	State *State `gorm:"foreignKey:StateName"`
}

var (
	ErrLifecycleNotFound    = errors.New("lifecycle not found")
	ErrLifecycleExists      = errors.New("lifecycle already exists")
	ErrStateNotInLifecycle  = errors.New("state is not part of the lifecycle")
	ErrStateBoundary        = errors.New("state is at the lifecycle boundary")
	ErrEmptyLifecycle       = errors.New("lifecycle must have at least one state")
	ErrInvalidOfficialState = errors.New("official state must be one of the lifecycle states")
)

// StateList is the rank-ordered view of a lifecycle's states.
type StateList struct {
	LifecycleName string
	OfficialState string
	Names         []string
}

func (l StateList) Index(name string) (int, error) {
	for i, n := range l.Names {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: state %v, lifecycle %v", ErrStateNotInLifecycle, name, l.LifecycleName)
}

func (l StateList) NextState(name string) (string, error) {
	rank, err := l.Index(name)
	if err != nil {
		return "", err
	}
	if rank == len(l.Names)-1 {
		return "", fmt.Errorf("%w: %v is the last state of %v", ErrStateBoundary, name, l.LifecycleName)
	}
	return l.Names[rank+1], nil
}

func (l StateList) PreviousState(name string) (string, error) {
	rank, err := l.Index(name)
	if err != nil {
		return "", err
	}
	if rank == 0 {
		return "", fmt.Errorf("%w: %v is the first state of %v", ErrStateBoundary, name, l.LifecycleName)
	}
	return l.Names[rank-1], nil
}

func (l StateList) First() string {
	return l.Names[0]
}

func (l StateList) Last() string {
	return l.Names[len(l.Names)-1]
}

func (l StateList) OfficialRank() int {
	rank, err := l.Index(l.OfficialState)
	if err != nil {
		return len(l.Names) - 1
	}
	return rank
}

// lifecycleCache memoizes state lists and the well-known lifecycles.
// Lifecycles are immutable after creation so entries are never invalidated
// during normal operation; Reset exists for tests and admin bootstrap.
type lifecycleCache struct {
	mu         sync.Mutex
	stateLists map[string]StateList
	def        *Lifecycle
	cancelled  *Lifecycle
	ecr        *Lifecycle
}

var cache = &lifecycleCache{stateLists: make(map[string]StateList)}

func ResetLifecycleCache() {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.stateLists = make(map[string]StateList)
	cache.def = nil
	cache.cancelled = nil
	cache.ecr = nil
}

// StatesList returns the ordered states of *lifecycle*, reading the database
// only on the first call per lifecycle.
func StatesList(lifecycle string, db *gorm.DB) (StateList, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if list, ok := cache.stateLists[lifecycle]; ok {
		return list, nil
	}

	var lc Lifecycle
	result := db.First(&lc, "name = ?", lifecycle)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return StateList{}, ErrLifecycleNotFound
		}
		slog.Error("sql error in get lifecycle", "lifecycle", lifecycle, "error", result.Error)
		return StateList{}, ErrDbAccessFailed
	}

	var states []LifecycleState
	result = db.Order("rank asc").Find(&states, "lifecycle_name = ?", lifecycle)
	if result.Error != nil {
		slog.Error("sql error in list lifecycle states", "lifecycle", lifecycle, "error", result.Error)
		return StateList{}, ErrDbAccessFailed
	}
	if len(states) == 0 {
		return StateList{}, ErrEmptyLifecycle
	}

	list := StateList{LifecycleName: lifecycle, OfficialState: lc.OfficialStateName}
	for _, s := range states {
		list.Names = append(list.Names, s.StateName)
	}

	cache.stateLists[lifecycle] = list
	return list, nil
}

// LifecycleFromStates creates a lifecycle from an ordered list of state names,
// creating missing State rows as needed. If the official state is the last
// state the lifecycle is tagged as an ECR-style lifecycle (single terminal
// approval path).
func LifecycleFromStates(name string, states []string, official string, db *gorm.DB) (Lifecycle, error) {
	if len(states) == 0 {
		return Lifecycle{}, ErrEmptyLifecycle
	}

	officialOk := false
	for _, s := range states {
		if s == official {
			officialOk = true
		}
	}
	if !officialOk {
		return Lifecycle{}, fmt.Errorf("%w: %v", ErrInvalidOfficialState, official)
	}

	lcType := LifecycleStandard
	if official == states[len(states)-1] {
		lcType = LifecycleEcr
	}
	lc := Lifecycle{Name: name, Type: lcType, OfficialStateName: official}

	err := db.Transaction(func(txn *gorm.DB) error {
		var existing Lifecycle
		result := txn.Limit(1).Find(&existing, "name = ?", name)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate lifecycle", "lifecycle", name, "error", result.Error)
			return ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return fmt.Errorf("%w: %v", ErrLifecycleExists, name)
		}

		for _, s := range states {
			result := txn.Where(State{Name: s}).FirstOrCreate(&State{Name: s})
			if result.Error != nil {
				slog.Error("sql error creating state", "state", s, "error", result.Error)
				return ErrDbAccessFailed
			}
		}

		if result := txn.Create(&lc); result.Error != nil {
			slog.Error("sql error creating lifecycle", "lifecycle", name, "error", result.Error)
			return ErrDbAccessFailed
		}

		for rank, s := range states {
			ls := LifecycleState{LifecycleName: name, StateName: s, Rank: rank}
			if result := txn.Create(&ls); result.Error != nil {
				slog.Error("sql error creating lifecycle state", "lifecycle", name, "state", s, "error", result.Error)
				return ErrDbAccessFailed
			}
		}
		return nil
	})
	if err != nil {
		return Lifecycle{}, err
	}

	return lc, nil
}

// CreateCancelledLifecycle creates the terminal lifecycle assigned to
// cancelled objects, if it does not exist yet. It is created directly instead
// of through LifecycleFromStates: its official state is its only (and
// therefore last) state, which would get it tagged as an ECR lifecycle and
// picked up by GetEcrLifecycle.
func CreateCancelledLifecycle(db *gorm.DB) error {
	return db.Transaction(func(txn *gorm.DB) error {
		var existing Lifecycle
		result := txn.Limit(1).Find(&existing, "name = ?", CancelledLifecycleName)
		if result.Error != nil {
			slog.Error("sql error checking for cancelled lifecycle", "error", result.Error)
			return ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return nil
		}

		state := State{Name: CancelledStateName}
		if result := txn.Where(state).FirstOrCreate(&state); result.Error != nil {
			slog.Error("sql error creating cancelled state", "error", result.Error)
			return ErrDbAccessFailed
		}
		lc := Lifecycle{
			Name:              CancelledLifecycleName,
			Type:              LifecycleCancelled,
			OfficialStateName: CancelledStateName,
		}
		if result := txn.Create(&lc); result.Error != nil {
			slog.Error("sql error creating cancelled lifecycle", "error", result.Error)
			return ErrDbAccessFailed
		}
		ls := LifecycleState{
			LifecycleName: CancelledLifecycleName,
			StateName:     CancelledStateName,
			Rank:          0,
		}
		if result := txn.Create(&ls); result.Error != nil {
			slog.Error("sql error creating cancelled lifecycle state", "error", result.Error)
			return ErrDbAccessFailed
		}
		return nil
	})
}

// GetDefaultLifecycle returns the lifecycle used when creating objects without
// an explicit lifecycle: the first standard lifecycle by name. Memoized for
// the lifetime of the process.
func GetDefaultLifecycle(db *gorm.DB) (Lifecycle, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if cache.def != nil {
		return *cache.def, nil
	}

	var lc Lifecycle
	result := db.Order("name asc").First(&lc, "type = ?", LifecycleStandard)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return lc, ErrLifecycleNotFound
		}
		slog.Error("sql error in get default lifecycle", "error", result.Error)
		return lc, ErrDbAccessFailed
	}

	cache.def = &lc
	return lc, nil
}

// GetCancelledLifecycle returns the single terminal lifecycle assigned to
// cancelled objects. Memoized for the lifetime of the process.
func GetCancelledLifecycle(db *gorm.DB) (Lifecycle, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if cache.cancelled != nil {
		return *cache.cancelled, nil
	}

	var lc Lifecycle
	result := db.First(&lc, "name = ?", CancelledLifecycleName)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return lc, ErrLifecycleNotFound
		}
		slog.Error("sql error in get cancelled lifecycle", "error", result.Error)
		return lc, ErrDbAccessFailed
	}

	cache.cancelled = &lc
	return lc, nil
}

// GetEcrLifecycle returns the lifecycle assigned to new ECRs: the first
// ECR-style lifecycle by name. Memoized for the lifetime of the process.
func GetEcrLifecycle(db *gorm.DB) (Lifecycle, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if cache.ecr != nil {
		return *cache.ecr, nil
	}

	var lc Lifecycle
	result := db.Order("name asc").First(&lc, "type = ?", LifecycleEcr)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return lc, ErrLifecycleNotFound
		}
		slog.Error("sql error in get ECR lifecycle", "error", result.Error)
		return lc, ErrDbAccessFailed
	}

	cache.ecr = &lc
	return lc, nil
}

// GetCancelledState returns the single state of the cancelled lifecycle.
func GetCancelledState(db *gorm.DB) (string, error) {
	lc, err := GetCancelledLifecycle(db)
	if err != nil {
		return "", err
	}
	list, err := StatesList(lc.Name, db)
	if err != nil {
		return "", err
	}
	return list.First(), nil
}

// GetDefaultState returns the initial state for *lifecycle*, the first state
// of the default lifecycle if *lifecycle* is empty.
func GetDefaultState(lifecycle string, db *gorm.DB) (string, error) {
	if lifecycle == "" {
		lc, err := GetDefaultLifecycle(db)
		if err != nil {
			return "", err
		}
		lifecycle = lc.Name
	}
	list, err := StatesList(lifecycle, db)
	if err != nil {
		return "", err
	}
	return list.First(), nil
}
