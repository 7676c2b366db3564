package internal

import "fmt"

type Config struct {
	BadgerFilepath      string `env:"BADGER_FILEPATH,required=true"`
	LogLevel            string `env:"LOG_LEVEL,required=true"`
	MasterPassphrase    string `env:"MASTER_PASSPHRASE,required=true"`
	KeyBits             int    `env:"KEY_BITS"`
	MaxContentLength    int    `env:"MAX_CONTENT_LENGTH,required=true"`
	MaxAttachmentSize   int64  `env:"MAX_ATTACHMENT_SIZE,required=true"`
	BlobDir             string `env:"BLOB_DIR,required=true"`
	CensoredWords       string `env:"CENSORED_WORDS"`
	CharReplacement     string `env:"CHARACTER_REPLACEMENT"`
	DebugServerEnabled  bool   `env:"DEBUG_SERVER_ENABLED"`
	DebugServerPort     int    `env:"DEBUG_SERVER_PORT"`
	DebugServerEndpoint string `env:"DEBUG_SERVER_ENDPOINT"`
}

// CharacterRune validates that the configured replacement is one rune.
func CharacterRune(str string) (rune, error) {
	if str == "" {
		return '*', nil
	}
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
