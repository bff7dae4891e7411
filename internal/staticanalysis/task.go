package staticanalysis

// A Task (static analysis task) refers to a particular type of static analysis to be performed.
type Task string

const (
	Behavior    Task = "behavior"
	Obfuscation Task = "obfuscation"
	IOCs        Task = "iocs"
	Binary      Task = "binary"
	Metadata    Task = "metadata"
)

func AllTasks() []Task {
	return []Task{
		Behavior,
		Obfuscation,
		IOCs,
		Binary,
		Metadata,
	}
}

func TaskFromString(s string) (Task, bool) {
	for _, t := range AllTasks() {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}
