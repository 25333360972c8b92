package process

// Progess updater interface
type ProgressUpdater interface {
	UpdateProgress(curr int, total int, message string)
}

type noProgress struct{}

func (noProgress) UpdateProgress(int, int, string) {}
