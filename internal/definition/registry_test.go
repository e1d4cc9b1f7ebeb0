package definition

import (
	"sync"
	"testing"

	"github.com/pitabwire/quotecfg/model"
)

func testTemplates() []model.Template {
	return []model.Template{
		{
			CalculatorConfig: model.CalculatorConfig{
				ID: "cards", Name: "Cards", Category: "cards",
				Components: map[string]model.ComponentConfig{
					"size": {ID: "size", Label: "Size", Type: model.ComponentSingleSelect, Options: []model.Option{{ID: "a6"}}},
				},
			},
			Checksum: "abc123",
		},
		{
			CalculatorConfig: model.CalculatorConfig{ID: "flyers", Name: "Flyers", Category: "leaflets"},
			Checksum:         "def456",
		},
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(testTemplates())

	tm, ok := r.Get("cards")
	if !ok {
		t.Fatal("Get(cards) not found")
	}
	if tm.Name != "Cards" {
		t.Errorf("Name = %q, want Cards", tm.Name)
	}

	if _, ok := r.Get("unknown"); ok {
		t.Error("Get(unknown) should return false")
	}
}

func TestRegistry_Get_returnsCopy(t *testing.T) {
	r := NewRegistry(testTemplates())
	tm, _ := r.Get("cards")
	tm.Components["size"].Options[0].ID = "changed"

	again, _ := r.Get("cards")
	if again.Components["size"].Options[0].ID != "a6" {
		t.Error("Get() shares option slices with the registry")
	}
}

func TestRegistry_All_sorted(t *testing.T) {
	r := NewRegistry([]model.Template{testTemplates()[1], testTemplates()[0]})
	all := r.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d, want 2", len(all))
	}
	if all[0].ID != "cards" || all[1].ID != "flyers" {
		t.Errorf("All() order = %s, %s", all[0].ID, all[1].ID)
	}
	if all[0].Components != 1 {
		t.Errorf("Components = %d, want 1", all[0].Components)
	}
}

func TestRegistry_laterTemplateWins(t *testing.T) {
	override := testTemplates()[0]
	override.Name = "Cards v2"
	r := NewRegistry(append(testTemplates(), override))

	tm, _ := r.Get("cards")
	if tm.Name != "Cards v2" {
		t.Errorf("Name = %q, want Cards v2", tm.Name)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRegistry_Checksum(t *testing.T) {
	r := NewRegistry(testTemplates())
	cs := r.Checksum()
	if cs == "" {
		t.Error("Checksum should not be empty")
	}
	reversed := NewRegistry([]model.Template{testTemplates()[1], testTemplates()[0]})
	if reversed.Checksum() != cs {
		t.Error("Checksum should not depend on template order")
	}
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry(testTemplates())
	if _, ok := r.Get("cards"); !ok {
		t.Fatal("before replace: cards not found")
	}

	r.Replace(nil)

	if _, ok := r.Get("cards"); ok {
		t.Error("after replace with nil: cards should not be found")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_ConcurrentReadWrite(t *testing.T) {
	r := NewRegistry(testTemplates())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Get("cards")
				r.All()
				r.Checksum()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 10; j++ {
			r.Replace(testTemplates())
		}
	}()

	wg.Wait()
}
