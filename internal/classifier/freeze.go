package classifier

import "strings"

// SetFreezePolicy marks parameters trainable or frozen for fine-tuning.
// With freezeBackbone every parameter except fc is frozen; unfreezeLastBlock then
// re-enables layer4. The fc layer is always trainable.
func (m *Model) SetFreezePolicy(freezeBackbone, unfreezeLastBlock bool) {
	for _, p := range m.params {
		if p.Buffer {
			continue
		}
		trainable := !freezeBackbone
		if freezeBackbone && unfreezeLastBlock && strings.HasPrefix(p.Name, "layer4.") {
			trainable = true
		}
		if strings.HasPrefix(p.Name, "fc.") {
			trainable = true
		}
		p.Trainable = trainable
	}
}

// BackwardStop returns the stage below which no parameter is trainable. Training passes
// it to Backward so frozen layers are never differentiated. An empty result means the
// whole network is trained.
func (m *Model) BackwardStop() string {
	stages := stageNames()
	for i, stage := range stages {
		if m.stageTrainable(stage) {
			if i == 0 {
				return ""
			}
			return stages[i-1]
		}
	}
	return "fc"
}

func (m *Model) stageTrainable(stage string) bool {
	prefix := stage + "."
	for _, p := range m.params {
		if p.Trainable && !p.Buffer && strings.HasPrefix(p.Name, prefix) {
			return true
		}
	}
	return false
}
