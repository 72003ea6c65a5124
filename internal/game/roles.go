/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

// Role is a player's hidden allegiance, fixed at start.
type Role string

const (
	RoleNone     Role = ""
	RoleDragon   Role = "dragon"
	RoleKnight   Role = "knight"
	RoleVillager Role = "villager"
)

// RoleCounts is one row of the distribution table.
type RoleCounts struct {
	Dragon   int
	Knight   int
	Villager int
}

// Distribution returns how many of each role a game of n players gets.
// There is always one Dragon and one extra Knight for every two players
// above four.
func Distribution(n int) (RoleCounts, error) {
	if n < MinPlayers || n > MaxPlayers {
		return RoleCounts{}, errorf(CodeInvalidPlayerCount, "need between %d and %d players, have %d", MinPlayers, MaxPlayers, n)
	}

	knights := (n - 3) / 2

	return RoleCounts{
		Dragon:   1,
		Knight:   knights,
		Villager: n - 1 - knights,
	}, nil
}

// AssignRoles shuffles ids with r and hands out the roles for len(ids)
// players in shuffled order. ids is not modified.
func AssignRoles(ids []string, r Rand) (map[string]Role, error) {
	counts, err := Distribution(len(ids))
	if err != nil {
		return nil, err
	}

	roles := make([]Role, 0, len(ids))
	roles = append(roles, RoleDragon)
	for range counts.Knight {
		roles = append(roles, RoleKnight)
	}
	for range counts.Villager {
		roles = append(roles, RoleVillager)
	}

	shuffled := make([]string, len(ids))
	copy(shuffled, ids)
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	assigned := make(map[string]Role, len(ids))
	for i, id := range shuffled {
		assigned[id] = roles[i]
	}

	return assigned, nil
}
