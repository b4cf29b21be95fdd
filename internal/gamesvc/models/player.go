package models

import "time"

// Role is the progression ladder every player climbs.
type Role int

const (
	RoleUnemployed Role = iota + 1
	RoleWorker
	RoleEntrepreneur
)

func (r Role) String() string {
	switch r {
	case RoleUnemployed:
		return "unemployed"
	case RoleWorker:
		return "worker"
	case RoleEntrepreneur:
		return "entrepreneur"
	}
	return "unknown"
}

// SpecialRole is held by at most one player per game for each value,
// independent of the progression ladder.
type SpecialRole int

const (
	SpecialNone SpecialRole = iota
	SpecialBanker
	SpecialPolitician
)

func (s SpecialRole) String() string {
	switch s {
	case SpecialNone:
		return ""
	case SpecialBanker:
		return "banker"
	case SpecialPolitician:
		return "politician"
	}
	return "unknown"
}

// UpgradeCost is the price of the next ladder step. Either resource pays
// for the whole step; money is tried first.
type UpgradeCost struct {
	Money     int64
	Influence int64
}

// Next returns the role above r with its cost. ok is false at the top of
// the ladder.
func (r Role) Next() (next Role, cost UpgradeCost, ok bool) {
	switch r {
	case RoleUnemployed:
		return RoleWorker, UpgradeCost{Money: 500, Influence: 3}, true
	case RoleWorker:
		return RoleEntrepreneur, UpgradeCost{Money: 1000, Influence: 6}, true
	case RoleEntrepreneur:
		return 0, UpgradeCost{}, false
	}
	return 0, UpgradeCost{}, false
}

// Player is one user's membership in one game. Leaving a game only clears
// is_active so money, role and vote history survive a re-join.
type Player struct {
	ID          int64       `json:"id"`
	GameID      string      `json:"game_id"`
	UserID      int64       `json:"user_id"`
	Username    string      `json:"username"`
	Role        Role        `json:"role"`
	SpecialRole SpecialRole `json:"special_role"`
	Money       int64       `json:"money"`
	Influence   int64       `json:"influence"`
	IsActive    bool        `json:"is_active"`
	IsObserver  bool        `json:"is_observer"`
	JoinedAt    time.Time   `json:"joined_at"`
}

// DisplayRole is the label clients show: the special role wins over the
// ladder role when one is held.
func (p *Player) DisplayRole() string {
	if p.SpecialRole != SpecialNone {
		return p.SpecialRole.String()
	}
	return p.Role.String()
}

// EligibleVoter reports whether the player counts toward election quorum.
func (p *Player) EligibleVoter() bool {
	return p.IsActive && !p.IsObserver
}
