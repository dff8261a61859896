// Package records declares the row shapes of the relations the portal reads
// from and writes to on the hosted data platform. The platform owns the
// schema; these types only describe the client-side contract.
package records

import "time"

// Relation names as exposed by the platform's data API.
const (
	RelationProfiles         = "profiles"
	RelationUserRoles        = "user_roles"
	RelationContactMessages  = "contact_messages"
	RelationBookBorrows      = "book_borrows"
	RelationCardApplications = "library_card_applications"
	RelationDonations        = "donations"
	RelationStudents         = "students"
	RelationNonStudents      = "non_students"
)

// RoleAssignment maps an identity to an application role.
type RoleAssignment struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ProfileRow carries the display attributes stored for an identity.
type ProfileRow struct {
	ID           string    `json:"id,omitempty"`
	UserID       string    `json:"user_id"`
	FullName     string    `json:"full_name"`
	Department   *string   `json:"department,omitempty"`
	Phone        *string   `json:"phone,omitempty"`
	RollNumber   *string   `json:"roll_number,omitempty"`
	StudentClass *string   `json:"student_class,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// ContactMessage is a submission from the public contact form.
type ContactMessage struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	IsSeen    bool      `json:"is_seen"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Borrow statuses used by the admin borrow view.
const (
	BorrowStatusBorrowed = "borrowed"
	BorrowStatusReturned = "returned"
)

// BookBorrow records one borrowed book for one identity. Date-only columns
// stay strings; the platform serializes them without a time component.
type BookBorrow struct {
	ID         string    `json:"id,omitempty"`
	UserID     string    `json:"user_id"`
	BookID     string    `json:"book_id"`
	BookTitle  string    `json:"book_title"`
	BorrowDate string    `json:"borrow_date,omitempty"`
	DueDate    string    `json:"due_date,omitempty"`
	ReturnDate *string   `json:"return_date,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// Card application statuses.
const (
	CardStatusPending  = "pending"
	CardStatusApproved = "approved"
	CardStatusRejected = "rejected"
)

// CardApplication is a library card application as submitted by the wizard.
// The platform generates id and card_number.
type CardApplication struct {
	ID            string    `json:"id,omitempty"`
	UserID        *string   `json:"user_id,omitempty"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	FatherName    *string   `json:"father_name,omitempty"`
	DOB           *string   `json:"dob,omitempty"`
	Class         string    `json:"class"`
	Field         *string   `json:"field,omitempty"`
	RollNo        string    `json:"roll_no"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	AddressStreet string    `json:"address_street"`
	AddressCity   string    `json:"address_city"`
	AddressState  string    `json:"address_state"`
	AddressZip    string    `json:"address_zip"`
	Status        string    `json:"status,omitempty"`
	CardNumber    *string   `json:"card_number,omitempty"`
	StudentID     *string   `json:"student_id,omitempty"`
	IssueDate     *string   `json:"issue_date,omitempty"`
	ValidThrough  *string   `json:"valid_through,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Donation records one donation entry.
type Donation struct {
	ID        string    `json:"id,omitempty"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Name      *string   `json:"name,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Message   *string   `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Student is a registered student holding a library card.
type Student struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	CardID    string    `json:"card_id"`
	Name      string    `json:"name"`
	RollNo    *string   `json:"roll_no,omitempty"`
	Class     *string   `json:"class,omitempty"`
	Field     *string   `json:"field,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// NonStudent is a registered non-student member (staff, faculty, visitor).
type NonStudent struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
