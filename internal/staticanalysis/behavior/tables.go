package behavior

import "regexp"

const (
	childProcessModule = "child_process"
	vmModule           = "vm"
)

// shellMethods are the child_process functions that start a process.
var shellMethods = map[string]bool{
	"exec":         true,
	"execSync":     true,
	"spawn":        true,
	"spawnSync":    true,
	"execFile":     true,
	"execFileSync": true,
	"fork":         true,
}

// alwaysShell are reported on a direct call even when their binding is not
// visible in the file.
var alwaysShell = map[string]bool{
	"execSync":     true,
	"spawnSync":    true,
	"execFile":     true,
	"execFileSync": true,
}

var networkModules = map[string]bool{
	"http":       true,
	"https":      true,
	"http2":      true,
	"axios":      true,
	"got":        true,
	"node-fetch": true,
	"request":    true,
}

// callableClients are network modules whose default export is itself a
// request function.
var callableClients = map[string]bool{
	"axios":      true,
	"got":        true,
	"node-fetch": true,
	"request":    true,
}

var networkMethods = map[string]bool{
	"request": true,
	"get":     true,
	"post":    true,
	"put":     true,
	"patch":   true,
}

var fsModules = map[string]bool{
	"fs":          true,
	"fs/promises": true,
	"fs-extra":    true,
}

var fsWriteMethods = map[string]bool{
	"writeFile":         true,
	"writeFileSync":     true,
	"appendFile":        true,
	"appendFileSync":    true,
	"createWriteStream": true,
	"unlink":            true,
	"unlinkSync":        true,
	"rm":                true,
	"rmSync":            true,
	"rmdir":             true,
	"rmdirSync":         true,
	"mkdir":             true,
	"mkdirSync":         true,
	"rename":            true,
	"renameSync":        true,
	"copyFile":          true,
	"copyFileSync":      true,
	"chmod":             true,
	"chmodSync":         true,
	"symlink":           true,
	"symlinkSync":       true,
}

var fsReadMethods = map[string]bool{
	"readFile":         true,
	"readFileSync":     true,
	"readdir":          true,
	"readdirSync":      true,
	"createReadStream": true,
}

var globalObjects = map[string]bool{
	"global":     true,
	"globalThis": true,
	"window":     true,
	"self":       true,
}

var (
	sensitiveEnvName = regexp.MustCompile(`(?i)TOKEN|SECRET|PASSWORD|PASSWD|PASSPHRASE|CREDENTIAL|PRIVATE_?KEY|API_?KEY|ACCESS_?KEY|SSH_?KEY|SESSION|(?:^|_)AUTH(?:_|$)|COOKIE|WEBHOOK`)
	benignEnvName    = regexp.MustCompile(`^(?:npm_config_|npm_package_|npm_lifecycle_)`)
)

var benignEnvNames = map[string]bool{
	"NODE_ENV":    true,
	"NODE_DEBUG":  true,
	"DEBUG":       true,
	"CI":          true,
	"TERM":        true,
	"LANG":        true,
	"PORT":        true,
	"HOST":        true,
	"TZ":          true,
	"PWD":         true,
	"INIT_CWD":    true,
	"FORCE_COLOR": true,
	"NO_COLOR":    true,
	"VERSION":     true,
}
