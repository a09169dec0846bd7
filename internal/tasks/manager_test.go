package tasks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/youufis/SmartKB/internal/identity"
)

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("Given a regular user When creating Then permission is denied and nothing is stored", func(t *testing.T) {
		// Given
		env := createTestEnv(t)
		env.dir.Add("s_zhang", identity.RoleRegular, "高一3班")

		// When
		out := env.manager.Handle(ctx, "s_zhang", "提交实验报告任务", "")

		// Then
		if out.Kind != OutcomeDenied || out.Message != "权限不足：只有管理员和教师可以创建任务" {
			t.Fatalf("expected denial, got %+v", out)
		}
		if !errors.Is(out.Err, ErrPermissionDenied) {
			t.Errorf("expected ErrPermissionDenied, got %v", out.Err)
		}
		if env.files.Exists(CreatorPath("s_zhang")) {
			t.Error("expected no task list for denied user")
		}
	})

	t.Run("Given an active task When the creator opens another Then the first is demoted", func(t *testing.T) {
		// Given
		env := createTestEnv(t)
		env.dir.Add("t_wang", identity.RoleTeacher, "高一3班")
		first, _, err := env.manager.Create(ctx, "t_wang", "作文")
		if err != nil {
			t.Fatal(err)
		}

		// When
		env.clock.Advance(time.Minute)
		second, reactivated, err := env.manager.Create(ctx, "t_wang", "实验报告")

		// Then
		if err != nil || reactivated {
			t.Fatalf("unexpected result: reactivated=%v err=%v", reactivated, err)
		}
		list, _ := env.store.Load("t_wang")
		if len(list.Tasks) != 2 {
			t.Fatalf("expected 2 tasks, got %d", len(list.Tasks))
		}
		for _, task := range list.Tasks {
			want := StatusInactive
			if task.ID == second.ID {
				want = StatusActive
			}
			if task.Status != want {
				t.Errorf("task %s: expected %s, got %s", task.Name, want, task.Status)
			}
		}
		if first.ID == second.ID {
			t.Error("expected distinct ids")
		}
	})

	t.Run("Given an inactive task When recreated Then id is kept and submissions reset", func(t *testing.T) {
		// Given
		env := createTestEnv(t)
		env.dir.Add("t_wang", identity.RoleTeacher, "高一3班")
		env.dir.Add("s_zhang", identity.RoleRegular, "高一3班")
		orig, _, _ := env.manager.Create(ctx, "t_wang", "作文")
		if _, err := env.manager.Submit(ctx, "s_zhang", orig, "我的作文"); err != nil {
			t.Fatal(err)
		}
		env.clock.Advance(time.Minute)
		_, _, _ = env.manager.Create(ctx, "t_wang", "实验报告")

		// When
		env.clock.Advance(time.Hour)
		out := env.manager.Handle(ctx, "t_wang", "提交作文任务", "")

		// Then
		if out.Kind != OutcomeReactivated || out.Message != "任务 '作文' 已重新激活" {
			t.Fatalf("expected reactivation, got %+v", out)
		}
		if out.Task.ID != orig.ID {
			t.Errorf("expected id %s to be kept, got %s", orig.ID, out.Task.ID)
		}
		if len(out.Task.Submissions) != 0 {
			t.Errorf("expected submissions reset, got %v", out.Task.Submissions)
		}
		if !out.Task.CreatedTime.After(orig.CreatedTime) {
			t.Errorf("expected refreshed created time, got %v (was %v)", out.Task.CreatedTime, orig.CreatedTime)
		}
	})

	t.Run("Given a new task When created Then the id embeds creator name and epoch", func(t *testing.T) {
		// Given
		env := createTestEnv(t)

		// When
		task, _, err := env.manager.Create(ctx, "root", "周报")

		// Then
		if err != nil {
			t.Fatal(err)
		}
		want := "root_周报_" + "1740816000"
		if task.ID != want {
			t.Errorf("expected id %s, got %s", want, task.ID)
		}
	})
}

func TestHandleSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("Given same-cohort teacher task When student sends 完成 Then it is submitted to three files", func(t *testing.T) {
		// Given
		env := createTestEnv(t)
		env.dir.Add("T", identity.RoleTeacher, "高一3班")
		env.dir.Add("S", identity.RoleRegular, "高一3班")
		if _, _, err := env.manager.Create(ctx, "T", "实验报告"); err != nil {
			t.Fatal(err)
		}

		// When
		candidates := env.manager.ResolveCandidates(ctx, "S")
		out := env.manager.Handle(ctx, "S", "完成", "用户: 我的实验结论是……")

		// Then
		if len(candidates) != 1 || candidates[0].Name != "实验报告" {
			t.Fatalf("expected sole candidate 实验报告, got %+v", candidates)
		}
		if out.Kind != OutcomeSubmitted {
			t.Fatalf("expected submission, got %+v", out)
		}
		if out.Message != "✅ 任务提交成功！\n已保存到：实验报告（创建者：T）" {
			t.Errorf("unexpected message %q", out.Message)
		}
		for _, p := range SummaryPaths(*out.Task) {
			data, ok, _ := env.files.Read(p)
			if !ok {
				t.Errorf("expected summary %s", p)
				continue
			}
			if !strings.Contains(string(data), "## 学生 S") || !strings.Contains(string(data), "我的实验结论") {
				t.Errorf("summary %s missing entry: %q", p, data)
			}
		}
		list, _ := env.store.Load("T")
		if !list.Tasks[0].HasSubmitted("S") {
			t.Error("expected S in submissions")
		}
	})

	t.Run("Given no active tasks When student sends 完成 Then no-task message", func(t *testing.T) {
		// Given
		env := createTestEnv(t)
		env.dir.Add("S", identity.RoleRegular, "高一3班")

		// When
		out := env.manager.Handle(ctx, "S", "结束", "")

		// Then
		if out.Kind != OutcomeNoTasks || out.Message != "当前没有活动任务，无法提交" {
			t.Fatalf("unexpected outcome %+v", out)
		}
	})

	t.Run("Given teachers outside the cohort When resolving Then all teacher tasks plus admin tasks", func(t *testing.T) {
		// Given
		env := createTestEnv(t)
		env.dir.Add("t_a", identity.RoleTeacher, "高一1班")
		env.dir.Add("t_b", identity.RoleTeacher, "高一2班")
		env.dir.Add("S", identity.RoleRegular, "高一9班")
		_, _, _ = env.manager.Create(ctx, "t_a", "甲")
		_, _, _ = env.manager.Create(ctx, "t_b", "乙")
		_, _, _ = env.manager.Create(ctx, "root", "全校")

		// When
		got := env.manager.ResolveCandidates(ctx, "S")

		// Then
		names := taskNames(got)
		if strings.Join(names, ",") != "甲,乙,全校" {
			t.Errorf("expected [甲 乙 全校], got %v", names)
		}
	})

	t.Run("Given a cohort match When resolving Then only matched teachers plus admin", func(t *testing.T) {
		// Given
		env := createTestEnv(t)
		env.dir.Add("t_a", identity.RoleTeacher, "高一1班")
		env.dir.Add("t_b", identity.RoleTeacher, "高一2班")
		env.dir.Add("S", identity.RoleRegular, "高一2班")
		_, _, _ = env.manager.Create(ctx, "t_a", "甲")
		_, _, _ = env.manager.Create(ctx, "t_b", "乙")
		_, _, _ = env.manager.Create(ctx, "root", "全校")

		// When
		got := env.manager.ResolveCandidates(ctx, "S")

		// Then
		if names := taskNames(got); strings.Join(names, ",") != "乙,全校" {
			t.Errorf("expected [乙 全校], got %v", names)
		}
	})

	t.Run("Given several candidates When student picks a number Then that task is submitted", func(t *testing.T) {
		// Given
		env := createTestEnv(t)
		env.dir.Add("t_a", identity.RoleTeacher, "高一1班")
		env.dir.Add("S", identity.RoleRegular, "高一1班")
		_, _, _ = env.manager.Create(ctx, "t_a", "甲")
		_, _, _ = env.manager.Create(ctx, "root", "全校")

		// When
		choose := env.manager.Handle(ctx, "S", "完成", "内容")
		invalid := env.manager.Handle(ctx, "S", "5", "内容")
		picked := env.manager.Handle(ctx, "S", "2", "内容")
		after := env.manager.Handle(ctx, "S", "2", "内容")

		// Then
		if choose.Kind != OutcomeChoose {
			t.Fatalf("expected a choice prompt, got %+v", choose)
		}
		wantPrompt := "当前有多个活动任务，请选择：\n1. 甲（创建者：t_a）\n2. 全校（创建者：root）\n请输入任务编号（1-2）："
		if choose.Message != wantPrompt {
			t.Errorf("unexpected prompt %q", choose.Message)
		}
		if invalid.Kind != OutcomeInvalidSelection || invalid.Message != "任务编号无效，请输入 1-2 之间的数字" {
			t.Errorf("expected invalid selection, got %+v", invalid)
		}
		if picked.Kind != OutcomeSubmitted || picked.Task.Name != "全校" {
			t.Errorf("expected 全校 submitted, got %+v", picked)
		}
		if after.Handled() {
			t.Errorf("expected the pending list to be cleared, got %+v", after)
		}
	})

	t.Run("Given no pending list When a number arrives Then it is not a task message", func(t *testing.T) {
		// Given
		env := createTestEnv(t)

		// When
		out := env.manager.Handle(ctx, "S", "3", "")

		// Then
		if out.Handled() {
			t.Errorf("expected not handled, got %+v", out)
		}
	})

	t.Run("Given only regular-user tasks When resolving Then no eligible task", func(t *testing.T) {
		// Given
		env := createTestEnv(t)
		env.dir.Add("S", identity.RoleRegular, "")
		env.dir.Add("former", identity.RoleRegular, "")
		_ = env.store.Save("former", TaskList{Tasks: []Task{{ID: "x", Creator: "former", Name: "旧任务", Status: StatusActive}}})
		_ = env.files.Store.Write(unifiedIndexKey, []byte("tasks:\n  - id: x\n    creator: former\n    name: 旧任务\n    status: active\n"))

		// When
		out := env.manager.Handle(ctx, "S", "完成", "")

		// Then
		if out.Kind != OutcomeNoEligible || out.Message != "当前没有适合您的活动任务" {
			t.Errorf("expected no eligible task, got %+v", out)
		}
	})
}

func TestSubmitAtomicity(t *testing.T) {
	ctx := context.Background()
	faults := []struct {
		name  string
		apply func(f *FaultyFiles)
	}{
		{"teacher summary write fails", func(f *FaultyFiles) { f.FailPrefix = "summary/teachers/"; f.FailWrites = true }},
		{"personal summary write fails", func(f *FaultyFiles) { f.FailPrefix = "users/T/summary/"; f.FailWrites = true }},
		{"admin summary write fails", func(f *FaultyFiles) { f.FailPrefix = "summary/admin/"; f.FailWrites = true }},
		{"admin summary silently dropped", func(f *FaultyFiles) { f.FailPrefix = "summary/admin/"; f.DropWrites = true }},
		{"task list save fails", func(f *FaultyFiles) { f.FailPrefix = "tasks/T/"; f.FailWrites = true }},
	}
	for _, fault := range faults {
		t.Run("Given "+fault.name+" When submitting Then nothing is recorded", func(t *testing.T) {
			// Given
			env := createTestEnv(t)
			env.dir.Add("T", identity.RoleTeacher, "高一3班")
			env.dir.Add("S", identity.RoleRegular, "高一3班")
			task, _, err := env.manager.Create(ctx, "T", "实验报告")
			if err != nil {
				t.Fatal(err)
			}
			fault.apply(env.files)

			// When
			out := env.manager.Handle(ctx, "S", "完成", "第一次提交内容")

			// Then
			if out.Kind != OutcomeFailed || out.Message != "⚠️ 任务提交失败：汇总文件未正确创建" {
				t.Fatalf("expected failure, got %+v", out)
			}
			if !errors.Is(out.Err, ErrSubmissionFailed) {
				t.Errorf("expected ErrSubmissionFailed, got %v", out.Err)
			}
			list, _ := env.store.Load("T")
			if list.Tasks[list.indexByID(task.ID)].HasSubmitted("S") {
				t.Error("expected S not to be recorded")
			}
			for _, p := range SummaryPaths(task) {
				data, ok, err := env.files.Read(p)
				if err != nil {
					t.Fatal(err)
				}
				if ok {
					t.Errorf("expected %s to be absent after a failed first submission, got %q", p, data)
				}
			}
		})
	}

	t.Run("Given existing summaries When a later submission fails Then earlier files keep their prior content", func(t *testing.T) {
		// Given
		env := createTestEnv(t)
		env.dir.Add("T", identity.RoleTeacher, "高一3班")
		task, _, err := env.manager.Create(ctx, "T", "实验报告")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := env.manager.Submit(ctx, "A", task, "甲的内容"); err != nil {
			t.Fatal(err)
		}
		before := make(map[string]string)
		for _, p := range SummaryPaths(task) {
			data, _, _ := env.files.Read(p)
			before[p] = string(data)
		}
		env.files.FailPrefix = "summary/admin/"
		env.files.FailWrites = true

		// When
		_, err = env.manager.Submit(ctx, "B", task, "乙的内容")

		// Then
		if !errors.Is(err, ErrSubmissionFailed) {
			t.Fatalf("expected ErrSubmissionFailed, got %v", err)
		}
		for _, p := range SummaryPaths(task) {
			data, _, _ := env.files.Read(p)
			if string(data) != before[p] {
				t.Errorf("expected %s unchanged, got %q", p, data)
			}
			if strings.Contains(string(data), "乙的内容") {
				t.Errorf("expected %s not to contain the failed entry", p)
			}
		}

		// And a retry after the fault clears writes the entry exactly once
		env.files.FailWrites = false
		if _, err := env.manager.Submit(ctx, "B", task, "乙的内容"); err != nil {
			t.Fatal(err)
		}
		for _, p := range SummaryPaths(task) {
			data, _, _ := env.files.Read(p)
			if n := strings.Count(string(data), "乙的内容"); n != 1 {
				t.Errorf("expected one entry in %s, got %d", p, n)
			}
		}
	})
}

func TestSubmitTwiceKeepsSetSemantics(t *testing.T) {
	ctx := context.Background()
	env := createTestEnv(t)
	env.dir.Add("T", identity.RoleTeacher, "c")
	task, _, _ := env.manager.Create(ctx, "T", "作业")

	if _, err := env.manager.Submit(ctx, "S", task, "一"); err != nil {
		t.Fatal(err)
	}
	got, err := env.manager.Submit(ctx, "S", task, "二")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Submissions) != 1 {
		t.Errorf("expected one submitter, got %v", got.Submissions)
	}
	data, _, _ := env.files.Read(SummaryPaths(task)[0])
	if strings.Count(string(data), "## 学生 S") != 2 {
		t.Errorf("expected both entries in the summary log")
	}
	if strings.Count(string(data), "# 任务汇总") != 1 {
		t.Errorf("expected a single header")
	}
}

func TestSubmitToDemotedTask(t *testing.T) {
	ctx := context.Background()
	env := createTestEnv(t)
	env.dir.Add("T", identity.RoleTeacher, "c")
	old, _, _ := env.manager.Create(ctx, "T", "旧")
	_, _, _ = env.manager.Create(ctx, "T", "新")

	_, err := env.manager.Submit(ctx, "S", old, "x")
	if !errors.Is(err, ErrTaskNotActive) {
		t.Fatalf("expected ErrTaskNotActive, got %v", err)
	}
}

func taskNames(ts []Task) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Name
	}
	return out
}
