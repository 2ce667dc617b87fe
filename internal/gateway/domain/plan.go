package domain

import "strings"

const (
	AttributeCleartextPassword = "Cleartext-Password"
	AttributeUserProfile       = "User-Profile"
	OpSet                      = ":="
)

// Stage names one step of a provisioning run.
type Stage string

const (
	StageConnect        Stage = "connect"
	StageDeletePassword Stage = "delete_password"
	StageInsertPassword Stage = "insert_password"
	StageDeleteProfile  Stage = "delete_profile"
	StageInsertProfile  Stage = "insert_profile"
	StageCommit         Stage = "commit"
)

// Statement is a parameterized radcheck statement. Placeholders are '?'.
type Statement struct {
	Stage Stage
	Query string
	Args  []any
}

// ProfileName renders the RADIUS profile for a package speed, e.g. 10 + M
// gives 10M_Profile.
func ProfileName(speed, speedType string) string {
	return strings.TrimSpace(speed) + strings.TrimSpace(speedType) + "_Profile"
}

// BuildPlan returns the four ordered statements that replace a subscriber's
// password and profile rows. Running the plan twice leaves one row of each.
func BuildPlan(req ProvisionRequest) []Statement {
	profile := ProfileName(req.Speed, req.SpeedType)
	return []Statement{
		{
			Stage: StageDeletePassword,
			Query: "DELETE FROM radcheck WHERE username = ? AND attribute = ?",
			Args:  []any{req.Username, AttributeCleartextPassword},
		},
		{
			Stage: StageInsertPassword,
			Query: "INSERT INTO radcheck (username, attribute, op, value) VALUES (?, ?, ?, ?)",
			Args:  []any{req.Username, AttributeCleartextPassword, OpSet, req.Password},
		},
		{
			Stage: StageDeleteProfile,
			Query: "DELETE FROM radcheck WHERE username = ? AND attribute = ?",
			Args:  []any{req.Username, AttributeUserProfile},
		},
		{
			Stage: StageInsertProfile,
			Query: "INSERT INTO radcheck (username, attribute, op, value) VALUES (?, ?, ?, ?)",
			Args:  []any{req.Username, AttributeUserProfile, OpSet, profile},
		},
	}
}
