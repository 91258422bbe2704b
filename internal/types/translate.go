package types

import "strings"

// French user-facing messages for known backend error fragments.
// Lookup is exact-match first, then substring against known fragments, else
// the raw message passes through unchanged.

// exactTranslations maps full backend error strings to user-facing French.
var exactTranslations = map[string]string{
	`new row violates row-level security policy for table "clients"`:          MsgPermissionClients,
	`new row violates row-level security policy for table "documents"`:        MsgPermissionDocuments,
	`new row violates row-level security policy for table "family_members"`:   MsgPermissionFamilyMembers,
	`new row violates row-level security policy for table "commissions"`:      MsgPermissionCommissions,
	`new row violates row-level security policy for table "company_contacts"`: MsgPermissionCompanyContacts,
	`JSON object requested, multiple (or no) rows returned`:                   MsgRecordNotFound,
}

// Exported message constants so handlers and tests reference the same strings.
const (
	MsgPermissionClients         = "Vous n'avez pas les droits nécessaires pour modifier les clients."
	MsgPermissionDocuments       = "Vous n'avez pas les droits nécessaires pour modifier les documents."
	MsgPermissionFamilyMembers   = "Vous n'avez pas les droits nécessaires pour modifier les membres de la famille."
	MsgPermissionCommissions     = "Vous n'avez pas les droits nécessaires pour modifier les commissions."
	MsgPermissionCompanyContacts = "Vous n'avez pas les droits nécessaires pour modifier les contacts compagnie."
	MsgPermissionGeneric         = "Vous n'avez pas les droits nécessaires pour effectuer cette action."
	MsgDuplicateRecord           = "Cet enregistrement existe déjà."
	MsgRecordInUse               = "Impossible de supprimer : cet enregistrement est utilisé ailleurs."
	MsgRecordNotFound            = "Enregistrement introuvable."
	MsgNetworkError              = "Problème de connexion. Veuillez réessayer."
)

// fragmentTranslation pairs a known backend fragment with its French message.
// Order matters: the first matching fragment wins.
type fragmentTranslation struct {
	fragment string
	message  string
}

var fragmentTranslations = []fragmentTranslation{
	{"row-level security policy", MsgPermissionGeneric},
	{"permission denied", MsgPermissionGeneric},
	{"duplicate key value violates unique constraint", MsgDuplicateRecord},
	{"violates foreign key constraint", MsgRecordInUse},
	{"no rows in result set", MsgRecordNotFound},
	{"connection refused", MsgNetworkError},
	{"context deadline exceeded", MsgNetworkError},
}

// TranslateError converts a raw backend error message to its French
// user-facing form. Unrecognized messages pass through unchanged.
func TranslateError(raw string) string {
	if msg, ok := exactTranslations[raw]; ok {
		return msg
	}
	for _, ft := range fragmentTranslations {
		if strings.Contains(raw, ft.fragment) {
			return ft.message
		}
	}
	return raw
}
