package nav

import "github.com/trezcool/masomo-portal/core/user"

// Icon names
const (
	IconLayoutDashboard = "LayoutDashboard"
	IconCalendar        = "Calendar"
	IconFileText        = "FileText"
	IconUserCheck       = "UserCheck"
	IconFileSpreadsheet = "FileSpreadsheet"
	IconBarChart        = "BarChart3"
	IconCreditCard      = "CreditCard"
	IconMessageSquare   = "MessageSquare"
	IconBell            = "Bell"
	IconUser            = "User"
	IconUsers           = "Users"
	IconClock           = "Clock"
	IconClipboardList   = "ClipboardList"
	IconGraduationCap   = "GraduationCap"
	IconBookOpen        = "BookOpen"
	IconUserCog         = "UserCog"
)

// Item is one sidebar link.
type Item struct {
	Name string `json:"name"`
	Href string `json:"href"`
	Icon string `json:"icon"`
}

// roleTable is never handed out: Table and Items return copies.
var roleTable = map[user.Role][]Item{
	user.RoleStudent: {
		{Name: "Dashboard", Href: "/student", Icon: IconLayoutDashboard},
		{Name: "Timetable", Href: "/student/timetable", Icon: IconCalendar},
		{Name: "Assignments", Href: "/student/assignments", Icon: IconFileText},
		{Name: "Attendance", Href: "/student/attendance", Icon: IconUserCheck},
		{Name: "Exams", Href: "/student/exams", Icon: IconFileSpreadsheet},
		{Name: "Results", Href: "/student/results", Icon: IconBarChart},
		{Name: "Fees", Href: "/student/fees", Icon: IconCreditCard},
		{Name: "Messages", Href: "/student/messages", Icon: IconMessageSquare},
		{Name: "Notices", Href: "/student/notices", Icon: IconBell},
		{Name: "My Profile", Href: "/student/profile", Icon: IconUser},
	},
	user.RoleParent: {
		{Name: "Dashboard", Href: "/parent", Icon: IconLayoutDashboard},
		{Name: "Children", Href: "/parent/children", Icon: IconUsers},
		{Name: "Attendance", Href: "/parent/attendance", Icon: IconUserCheck},
		{Name: "Timetable", Href: "/parent/timetable", Icon: IconCalendar},
		{Name: "Assignments", Href: "/parent/assignments", Icon: IconFileText},
		{Name: "Results", Href: "/parent/results", Icon: IconBarChart},
		{Name: "Fees", Href: "/parent/fees", Icon: IconCreditCard},
		{Name: "Messages", Href: "/parent/messages", Icon: IconMessageSquare},
		{Name: "Notices", Href: "/parent/notices", Icon: IconBell},
	},
	user.RoleTeacher: {
		{Name: "Dashboard", Href: "/teacher", Icon: IconLayoutDashboard},
		{Name: "My Classes", Href: "/teacher/classes", Icon: IconUsers},
		{Name: "Timetable", Href: "/teacher/timetable", Icon: IconClock},
		{Name: "Assignments", Href: "/teacher/assignments", Icon: IconFileText},
		{Name: "Attendance", Href: "/teacher/attendance", Icon: IconClipboardList},
		{Name: "Marks Entry", Href: "/teacher/marks", Icon: IconBarChart},
		{Name: "Messages", Href: "/teacher/messages", Icon: IconMessageSquare},
		{Name: "Notices", Href: "/teacher/notices", Icon: IconBell},
		{Name: "My Profile", Href: "/teacher/profile", Icon: IconUser},
	},
	user.RoleAdmin: {
		{Name: "Dashboard", Href: "/admin", Icon: IconLayoutDashboard},
		{Name: "Students", Href: "/admin/students", Icon: IconUsers},
		{Name: "Teachers", Href: "/admin/teachers", Icon: IconGraduationCap},
		{Name: "Classes", Href: "/admin/classes", Icon: IconBookOpen},
		{Name: "Attendance", Href: "/admin/attendance", Icon: IconUserCheck},
		{Name: "Timetable", Href: "/admin/timetable", Icon: IconClock},
		{Name: "Exams", Href: "/admin/exams", Icon: IconFileSpreadsheet},
		{Name: "Fees", Href: "/admin/fees", Icon: IconCreditCard},
		{Name: "Admissions", Href: "/admin/admissions", Icon: IconClipboardList},
		{Name: "Notices", Href: "/admin/notices", Icon: IconBell},
		{Name: "Admin Users", Href: "/admin/users", Icon: IconUserCog},
		{Name: "Reports", Href: "/admin/reports", Icon: IconBarChart},
	},
}

// Items returns the ordered links of role. Unknown roles get none.
func Items(role user.Role) []Item {
	return append([]Item{}, roleTable[role]...)
}

// Table returns a copy of the whole role table.
func Table() map[user.Role][]Item {
	table := make(map[user.Role][]Item, len(roleTable))
	for role := range roleTable {
		table[role] = Items(role)
	}
	return table
}

// Active returns the item whose href is exactly path. No prefix matching: "/admin" is not active on "/admin/students".
func Active(items []Item, path string) (Item, bool) {
	for _, it := range items {
		if it.Href == path {
			return it, true
		}
	}
	return Item{}, false
}

// Lookup finds the item of role at path.
func Lookup(role user.Role, path string) (Item, bool) {
	return Active(roleTable[role], path)
}
