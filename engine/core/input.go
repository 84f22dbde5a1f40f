package core

// Key code definitions
type KeyCode uint16

const (
	KEY_UNKNOWN KeyCode = 0x00
	KEY_ENTER   KeyCode = 0x0D
	KEY_ESCAPE  KeyCode = 0x1B
	KEY_SPACE   KeyCode = 0x20
	KEY_F       KeyCode = 0x46
	KEY_P       KeyCode = 0x50
	KEY_R       KeyCode = 0x52
	KEY_T       KeyCode = 0x54
)
