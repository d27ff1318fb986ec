package formbuilder

import (
	"errors"
	"testing"
)

func TestFieldBuffer_DiscardLeavesStepUntouched(t *testing.T) {
	pt := newTestProjectType(t)
	buf, err := NewFieldBuffer(pt, "step-location")
	if err != nil {
		t.Fatalf("NewFieldBuffer() error = %v", err)
	}

	if _, err := buf.AddField(FieldDate); err != nil {
		t.Fatal(err)
	}
	label := "Region Name"
	if _, err := buf.UpdateField("region", FieldPatch{Label: &label}); err != nil {
		t.Fatal(err)
	}

	step, _ := pt.Step("step-location")
	if len(step.Fields) != 2 {
		t.Errorf("step fields = %d before commit, want 2", len(step.Fields))
	}
	if step.Fields[0].Label != "Region" {
		t.Errorf("label changed before commit: %q", step.Fields[0].Label)
	}
}

func TestFieldBuffer_Commit(t *testing.T) {
	pt := newTestProjectType(t)
	buf, err := NewFieldBuffer(pt, "step-location")
	if err != nil {
		t.Fatal(err)
	}
	added, err := buf.AddField(FieldText)
	if err != nil {
		t.Fatal(err)
	}
	if err := buf.DeleteField("province"); err != nil {
		t.Fatal(err)
	}

	if err := buf.Commit(pt); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	step, _ := pt.Step("step-location")
	if len(step.Fields) != 2 || step.Fields[1].ID != added.ID {
		t.Errorf("committed fields = %+v", step.Fields)
	}
	if step.Fields.Index("province") >= 0 {
		t.Error("deleted field survived commit")
	}
}

func TestFieldBuffer_Load(t *testing.T) {
	pt := newTestProjectType(t)
	buf, err := NewFieldBuffer(pt, "step-document-upload")
	if err != nil {
		t.Fatal(err)
	}

	buf.Load(nil)
	if buf.Fields == nil || len(buf.Fields) != 0 {
		t.Errorf("Load(nil) fields = %#v, want empty list", buf.Fields)
	}

	if _, err := NewFieldBuffer(pt, "missing"); !errors.Is(err, ErrStepNotFound) {
		t.Errorf("error = %v, want ErrStepNotFound", err)
	}
}
