package firebase

import (
	"os"

	"google.golang.org/api/option"
)

// credentialOptions prefers FIREBASE_SERVICE_ACCOUNT_JSON (raw json) over
// GOOGLE_APPLICATION_CREDENTIALS (a file path). With neither set the
// clients use Application Default Credentials, as on Cloud Run.
func credentialOptions() []option.ClientOption {
	if json := getenv("FIREBASE_SERVICE_ACCOUNT_JSON", ""); json != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(json))}
	}
	if cred := getenv("GOOGLE_APPLICATION_CREDENTIALS", ""); cred != "" {
		return []option.ClientOption{option.WithCredentialsFile(cred)}
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
